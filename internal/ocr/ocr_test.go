package ocr

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

type stubRunner struct {
	calls  [][]string
	stdout []byte
	stderr []byte
	err    error
	// onRun lets a test create files the real command would have written.
	onRun func(args []string)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.onRun != nil {
		s.onRun(args)
	}
	return s.stdout, s.stderr, s.err
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\t身\n" +
	"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t80\t高\n" +
	"5\t1\t1\t1\t1\t3\t0\t0\t10\t10\t70\t170\n" +
	"5\t1\t1\t1\t1\t4\t0\t0\t10\t10\t60\tcm\n" +
	"5\t1\t1\t1\t2\t1\t0\t0\t10\t10\t-1\tBlood\n" +
	"5\t1\t1\t1\t2\t2\t0\t0\t10\t10\t50\tPressure\n" +
	"5\t1\t1\t1\t2\t3\t0\t0\t10\t10\t50\t \n"

func TestParseTSV(t *testing.T) {
	blocks, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, "身高170 cm", blocks[0].Text)
	assert.InDelta(t, 0.75, blocks[0].Confidence, 1e-9)
	assert.Equal(t, Line{Page: 1, Block: 1, Paragraph: 1, Line: 1}, blocks[0].Region)

	assert.Equal(t, "Blood Pressure", blocks[1].Text)
	assert.InDelta(t, 0.50, blocks[1].Confidence, 1e-9, "-1 rows do not count")
}

func TestParseTSV_MissingHeader(t *testing.T) {
	_, err := ParseTSV([]byte("garbage"))
	assert.Error(t, err)
}

func TestTesseract_Args(t *testing.T) {
	r := &stubRunner{stdout: []byte(sampleTSV)}
	tess := NewTesseract(Config{PSM: 6, OEM: 1, TessdataDir: "/td"}, WithRunner(r))

	blocks, err := tess.Recognize(context.Background(), Image{Page: 1, Path: "/tmp/x.png"})
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"tesseract", "/tmp/x.png", "stdout", "-l", "chi_tra+eng",
		"--psm", "6", "--oem", "1", "--tessdata-dir", "/td", "tsv"}, r.calls[0])
}

func TestTesseract_SpillsData(t *testing.T) {
	var seen string
	r := &stubRunner{stdout: []byte(sampleTSV)}
	r.onRun = func(args []string) {
		seen = args[0]
		data, err := os.ReadFile(seen)
		assert.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	}
	_, err := NewTesseract(Config{}, WithRunner(r)).Recognize(context.Background(), Image{Page: 2, Data: []byte("png-bytes")})
	require.NoError(t, err)

	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr), "temp file removed")
}

func TestTesseract_Failure(t *testing.T) {
	r := &stubRunner{stderr: []byte("Error opening data file"), err: errors.New("exit status 1")}
	_, err := NewTesseract(Config{}, WithRunner(r)).Recognize(context.Background(), Image{Page: 1, Path: "x.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRecognitionFailed)
	assert.Contains(t, err.Error(), "Error opening data file")

	_, err = NewTesseract(Config{}, WithRunner(&stubRunner{})).Recognize(context.Background(), Image{Page: 1})
	assert.ErrorIs(t, err, common.ErrRecognitionFailed)
}

func TestPdftoppm(t *testing.T) {
	r := &stubRunner{}
	r.onRun = func(args []string) {
		prefix := args[len(args)-1]
		for _, n := range []string{"10", "2", "1"} {
			require.NoError(t, os.WriteFile(prefix+"-"+n+".png", []byte("p"+n), 0o600))
		}
	}
	p := NewPdftoppm(Config{MaxPages: 2}, WithRunner(r))

	pages, err := p.ToImages(context.Background(), []byte("%PDF-1.4"), 0)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "p1", string(pages[0].Data))
	assert.Equal(t, "p2", string(pages[1].Data))
	assert.Equal(t, 2, pages[1].Page)

	args := r.calls[0]
	assert.Equal(t, "pdftoppm", args[0])
	assert.Equal(t, []string{"-r", "300", "-png", "-l", "2"}, args[1:6])
	assert.True(t, strings.HasSuffix(args[6], "in.pdf"))
	assert.Equal(t, "page", filepath.Base(args[7]))
}

func TestPdftoppm_NoPages(t *testing.T) {
	_, err := NewPdftoppm(Config{}, WithRunner(&stubRunner{})).ToImages(context.Background(), []byte("%PDF"), 150)
	assert.ErrorIs(t, err, common.ErrConversionFailed)

	_, err = NewPdftoppm(Config{}, WithRunner(&stubRunner{err: errors.New("boom")})).ToImages(context.Background(), []byte("%PDF"), 150)
	assert.ErrorIs(t, err, common.ErrConversionFailed)

	_, err = NewPdftoppm(Config{}).ToImages(context.Background(), nil, 150)
	assert.ErrorIs(t, err, common.ErrConversionFailed)
}

func TestMeanConfidenceAndText(t *testing.T) {
	assert.Zero(t, MeanConfidence(nil))
	blocks := []entity.TextBlock{{Text: "a", Confidence: 0.9}, {Text: "b", Confidence: 0.5}}
	assert.InDelta(t, 0.7, MeanConfidence(blocks), 1e-9)
	assert.Equal(t, "a\nb", Text(blocks))
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	r := ExecRunner{Env: []string{"OMP_THREAD_LIMIT=1"}}

	out, _, err := r.Run(context.Background(), "sh", "-c", "printf %s \"$OMP_THREAD_LIMIT\"")
	require.NoError(t, err)
	assert.Equal(t, "1", string(out))

	_, errb, err := r.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, "boom\n", string(errb))
}
