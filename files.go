package openiap

import (
	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// DownloadRequest fetches a stored file to a local folder.
type DownloadRequest struct {
	// Collection is the files collection. Default: "fs.files"
	Collection string
	ID         string
	// Folder receives the file. Default: the working directory
	Folder string
	// Filename overrides the stored name.
	Filename string
}

func (r DownloadRequest) validate() error {
	if r.ID == "" {
		return invalid("download", "id", "is required")
	}
	return nil
}

func downloadCall(req DownloadRequest) call[string] {
	return call[string]{
		op:    "download",
		fn:    "download",
		async: "download_async",
		free:  "free_download_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.DownloadRequest{
				CollectionName: a.CString(req.Collection),
				ID:             a.CString(req.ID),
				Folder:         a.CString(req.Folder),
				Filename:       a.CString(req.Filename),
				RequestID:      id,
			}))}
		},
		decode: decodeResult("download"),
	}
}

// Download writes the file to disk and returns the name it was saved under.
func (c *Client) Download(req DownloadRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return downloadCall(req).run(c)
}

// DownloadAsync is the asynchronous form of Download.
func (c *Client) DownloadAsync(req DownloadRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return downloadCall(req).start(c)
}

// UploadRequest stores a local file on the server.
type UploadRequest struct {
	FilePath string
	// Filename is the stored name. Default: the base name of FilePath
	Filename string
	MimeType string
	// Metadata is a JSON object stored with the file.
	Metadata   string
	Collection string
}

func (r UploadRequest) validate() error {
	if r.FilePath == "" {
		return invalid("upload", "filepath", "is required")
	}
	return checkJSON("upload", "metadata", r.Metadata)
}

func uploadCall(req UploadRequest) call[string] {
	return call[string]{
		op:    "upload",
		fn:    "upload",
		async: "upload_async",
		free:  "free_upload_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.UploadRequest{
				FilePath:       a.CString(req.FilePath),
				Filename:       a.CString(req.Filename),
				MimeType:       a.CString(req.MimeType),
				Metadata:       a.CString(req.Metadata),
				CollectionName: a.CString(req.Collection),
				RequestID:      id,
			}))}
		},
		decode: decodeResult("upload"),
	}
}

// Upload stores the file and returns its id.
func (c *Client) Upload(req UploadRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return uploadCall(req).run(c)
}

// UploadAsync is the asynchronous form of Upload.
func (c *Client) UploadAsync(req UploadRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return uploadCall(req).start(c)
}
