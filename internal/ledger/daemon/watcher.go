package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	default:
		return "unknown"
	}
}

// FileType says which inbox directory a file was dropped into.
type FileType int

const (
	// TypeAccount is a file under inbox/accounts.
	TypeAccount FileType = iota
	// TypeTransaction is a file under inbox/transactions.
	TypeTransaction
)

func (ft FileType) String() string {
	switch ft {
	case TypeAccount:
		return "account"
	case TypeTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// FileEvent is a record file appearing or changing in the inbox.
type FileEvent struct {
	Path string
	Type FileType
	Op   EventOp
}

// FileWatcher watches the inbox directories for *.json files.
// Removals and renames are not reported; the inbox itself removes files
// once they are processed.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      gosync.WaitGroup
	mu      gosync.Mutex
	running bool

	accountsDir     string
	transactionsDir string
}

// NewFileWatcher creates a FileWatcher. Call Start to begin watching.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start watches the two directories, which must exist.
func (fw *FileWatcher) Start(accountsDir, transactionsDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	fw.accountsDir = absOrSelf(accountsDir)
	fw.transactionsDir = absOrSelf(transactionsDir)

	if err := fw.watcher.Add(accountsDir); err != nil {
		return fmt.Errorf("failed to watch accounts inbox %s: %w", accountsDir, err)
	}
	if err := fw.watcher.Add(transactionsDir); err != nil {
		_ = fw.watcher.Remove(accountsDir)
		return fmt.Errorf("failed to watch transactions inbox %s: %w", transactionsDir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	return nil
}

// Events returns the channel of inbox file events.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel of watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if !strings.HasSuffix(event.Name, ".json") {
		return FileEvent{}, false
	}

	fileType, ok := fw.determineFileType(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: event.Name, Type: fileType, Op: op}, true
}

func (fw *FileWatcher) determineFileType(path string) (FileType, bool) {
	switch filepath.Dir(absOrSelf(path)) {
	case fw.accountsDir:
		return TypeAccount, true
	case fw.transactionsDir:
		return TypeTransaction, true
	}
	return 0, false
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
