package proxy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// openDump creates the per-request raw dump file when dumping is
// enabled. Returns nil on any failure: the dump is a debugging side
// channel and never gates the live forward path.
func (p *Server) openDump(connectionID string) io.WriteCloser {
	if !p.cfg.Dump.Enabled {
		return nil
	}

	if err := os.MkdirAll(p.cfg.Dump.Dir, 0700); err != nil {
		p.logger.Warn("failed to create dump directory", "dir", p.cfg.Dump.Dir, "error", err)
		return nil
	}

	name := fmt.Sprintf("%d-%s.raw", time.Now().UnixNano(), connectionID)
	f, err := os.OpenFile(filepath.Join(p.cfg.Dump.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		p.logger.Warn("failed to create dump file", "name", name, "error", err)
		return nil
	}
	return f
}
