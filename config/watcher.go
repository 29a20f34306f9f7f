// 配置文件变更监听。
//
// 监听配置文件所在目录（编辑器常用 rename 方式保存），按路径过滤并防抖后回调。
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileOp 文件操作类型
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
	FileOpChmod
)

// String 返回操作名
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	case FileOpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 一次防抖后的文件事件
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// opFromNotify 将 fsnotify 的位集合折叠为单一操作，写入优先
func opFromNotify(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpChmod
	}
}

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖时间
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

// WithWatcherLogger 设置记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// FileWatcher 监听一组配置文件
type FileWatcher struct {
	mu            sync.Mutex
	paths         map[string]bool
	debounceDelay time.Duration
	callbacks     []func(FileEvent)
	logger        *zap.Logger

	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	running bool
	done    chan struct{}
}

// NewFileWatcher 创建监听器，路径会被解析为绝对路径
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         make(map[string]bool, len(paths)),
		debounceDelay: 200 * time.Millisecond,
		timers:        make(map[string]*time.Timer),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.paths[abs] = true
	}
	return w, nil
}

// OnChange 注册回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Paths 返回被监听的绝对路径
func (w *FileWatcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	return out
}

// IsRunning 是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start 开始监听，ctx 取消或调用 Stop 后结束
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.watcher = fw
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx, fw, w.done)

	w.logger.Info("config watcher started", zap.Strings("paths", w.pathsLocked()))
	return nil
}

// Stop 停止监听并等待事件循环退出
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fw, done := w.watcher, w.done
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := fw.Close()
	<-done
	return err
}

func (w *FileWatcher) pathsLocked() []string {
	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	return out
}

func (w *FileWatcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			_ = fw.Close()
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.schedule(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// schedule 对同一路径的连续事件防抖，只派发最后一次
func (w *FileWatcher) schedule(ev fsnotify.Event) {
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.paths[path] || !w.running {
		return
	}
	event := FileEvent{Path: path, Op: opFromNotify(ev.Op), Timestamp: time.Now()}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounceDelay, func() { w.dispatch(event) })
}

func (w *FileWatcher) dispatch(event FileEvent) {
	w.mu.Lock()
	delete(w.timers, event.Path)
	running := w.running
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()
	if !running {
		return
	}

	w.logger.Debug("config file event", zap.String("path", event.Path), zap.String("op", event.Op.String()))
	for _, cb := range callbacks {
		cb(event)
	}
}
