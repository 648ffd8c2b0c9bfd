package filestore

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lostfound/chatsync/internal/chat"
)

// MaxUploadBytes caps files read by ReadUpload.
const MaxUploadBytes = 25 << 20

// ReadUpload loads a local file for sending. The content type comes from
// the extension, or is sniffed when the extension is unknown.
func ReadUpload(path string) (chat.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return chat.Upload{}, err
	}
	switch {
	case info.IsDir():
		return chat.Upload{}, fmt.Errorf("%s is a directory", path)
	case info.Size() == 0:
		return chat.Upload{}, fmt.Errorf("%s is empty", path)
	case info.Size() > MaxUploadBytes:
		return chat.Upload{}, fmt.Errorf("%s is larger than %d MiB", path, MaxUploadBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return chat.Upload{}, err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return chat.Upload{FileName: filepath.Base(path), ContentType: ct, Data: data}, nil
}
