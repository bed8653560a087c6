package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPolicyCheck(t *testing.T) {
	p := NewUploadPolicy(testCfg)

	cases := []struct {
		name    string
		files   []Upload
		wantMsg string
	}{
		{"empty batch", nil, ""},
		{"png image", []Upload{memUpload("a.png", "image/png", "x")}, ""},
		{"pdf", []Upload{memUpload("a.PDF", "application/pdf", "x")}, ""},
		{"docx", []Upload{memUpload("a.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "x")}, ""},
		{"content type params", []Upload{memUpload("a.jpg", "image/jpeg; charset=binary", "x")}, ""},
		{"exe spoofed as png", []Upload{memUpload("evil.exe", "image/png", "x")}, "executable/script not allowed"},
		{"script", []Upload{memUpload("run.sh", "text/plain", "x")}, "executable/script not allowed"},
		{"png as octet-stream", []Upload{memUpload("a.png", "application/octet-stream", "x")}, "content type"},
		{"not allow-listed", []Upload{memUpload("notes.txt", "text/plain", "x")}, "type not allow-listed"},
		{"missing content type", []Upload{memUpload("a.png", "", "x")}, "content type"},
		{"one bad file rejects batch", []Upload{memUpload("a.png", "image/png", "x"), memUpload("b.bat", "image/png", "x")}, "b.bat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Check(tc.files)
			if tc.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			se := requireKind(t, err, KindValidation)
			assert.Equal(t, "files", se.Field)
			assert.Contains(t, se.Message, tc.wantMsg)
		})
	}
}

func TestUploadPolicyLimits(t *testing.T) {
	p := NewUploadPolicy(testCfg)
	require.Equal(t, 10, p.MaxFiles)
	require.Equal(t, int64(20<<20), p.MaxFileBytes)

	eleven := make([]Upload, 11)
	for i := range eleven {
		eleven[i] = memUpload("a.png", "image/png", "x")
	}
	se := requireKind(t, p.Check(eleven), KindValidation)
	assert.Contains(t, se.Message, "at most 10")
	assert.NoError(t, p.Check(eleven[:10]))

	big := memUpload("big.png", "image/png", "")
	big.Size = 20<<20 + 1
	se = requireKind(t, p.Check([]Upload{big}), KindValidation)
	assert.Contains(t, se.Message, "20 MiB")

	// size is checked before the deny list
	bigExe := memUpload("big.exe", "image/png", "")
	bigExe.Size = 21 << 20
	se = requireKind(t, p.Check([]Upload{bigExe}), KindValidation)
	assert.True(t, strings.Contains(se.Message, "MiB"))
}

func TestUploadPolicyMaxRequestBytes(t *testing.T) {
	p := UploadPolicy{MaxFiles: 10, MaxFileBytes: 20 << 20}
	assert.Equal(t, int64(200<<20+multipartOverhead), p.MaxRequestBytes())
}
