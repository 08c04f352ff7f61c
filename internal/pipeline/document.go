package pipeline

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

// Document is one input to Parse. Path, Data or both may be set; Data wins
// when present. Ext overrides the extension taken from Path.
type Document struct {
	ID     string
	Path   string
	Data   []byte
	Ext    string
	SHA256 string
}

func (d *Document) empty() bool {
	return d == nil || (strings.TrimSpace(d.Path) == "" && len(d.Data) == 0)
}

// ResolvedExt is the normalized extension Parse works with: Ext, then the
// extension of Path, then a guess from the content.
func (d *Document) ResolvedExt() string {
	if d.Ext != "" {
		return constants.NormalizeExt(d.Ext)
	}
	if e := filepath.Ext(d.Path); e != "" {
		return constants.NormalizeExt(e)
	}
	if len(d.Data) > 0 {
		return extFromMIME(http.DetectContentType(d.Data))
	}
	return ""
}

// DetectMIME returns the MIME type for a supported extension and falls back
// to content sniffing.
func DetectMIME(ext string, data []byte) string {
	if m := constants.MIMEType(ext); m != "" {
		return m
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

func extFromMIME(mime string) string {
	switch mime {
	case "application/pdf":
		return "pdf"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	}
	return ""
}
