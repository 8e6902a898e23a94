package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout - формат метки времени в строках журналов задач.
const TimestampLayout = "02/01/2006-15:04:05"

// Файлы журналов задач.
const (
	HeartbeatLogFile   = "crm_heartbeat_log.txt"
	RemindersLogFile   = "order_reminders_log.txt"
	LowStockLogFile    = "low_stock_updates_log.txt"
	ReportLogFile      = "crm_report_log.txt"
	defaultSinkPerm    = 0o644
	defaultSinkDirPerm = 0o755
)

// FileSink дописывает строки в конец файла. Файл открывается на каждую
// запись, поэтому внешняя ротация не требует перезапуска.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink создаёт журнал по пути path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path возвращает путь файла журнала.
func (s *FileSink) Path() string { return s.path }

// Append записывает строки с общей меткой времени одним вызовом write.
func (s *FileSink) Append(ts time.Time, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}

	stamp := ts.Format(TimestampLayout)
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(stamp)
		b.WriteByte(' ')
		b.WriteString(strings.TrimRight(line, "\n"))
		b.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), defaultSinkDirPerm); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultSinkPerm)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return f.Close()
}
