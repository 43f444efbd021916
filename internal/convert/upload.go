package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const maxFormValueBytes = 1 << 20

// Upload is what a request delivered into a new workspace.
type Upload struct {
	Workspace *Workspace
	Files     []string
	Values    url.Values
}

func (u *Upload) has(name string) bool {
	for _, f := range u.Files {
		if f == name {
			return true
		}
	}
	return false
}

var errNoInput = errors.New("need to supply either an id or filename or supply data in request body")

// Receive stores the document carried by r into a new workspace: a
// multipart upload (file, fields, tables or a json text field), a JSON
// body, or the download of req.FileURL.
func (s *Service) Receive(ctx context.Context, w http.ResponseWriter, r *http.Request, req Request) (*Upload, error) {
	if _, err := s.Clean(s.now()); err != nil {
		s.logf("workspace cleanup failed: %v", err)
	}
	ws, err := s.newWorkspace()
	if err != nil {
		return nil, err
	}
	up := &Upload{Workspace: ws, Values: url.Values{}}

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	body := http.MaxBytesReader(w, r.Body, s.maxBytes)
	switch {
	case mediaType == "multipart/form-data" && params["boundary"] != "":
		if err := s.receiveMultipart(r, body, up); err != nil {
			return up, err
		}
	case mediaType == "application/json":
		if err := s.save(ws.path(downloadFile), body); err != nil {
			return up, err
		}
		up.Files = append(up.Files, "file")
	}

	fileURL := req.FileURL
	if fileURL == "" {
		fileURL = strings.TrimSpace(up.Values.Get("file_url"))
	}
	if fileURL != "" && !up.has("file") {
		if err := s.download(ctx, fileURL, ws.path(downloadFile)); err != nil {
			return up, err
		}
		up.Files = append(up.Files, "file")
	}

	if !up.has("file") {
		return up, errNoInput
	}
	return up, nil
}

func (s *Service) receiveMultipart(r *http.Request, body io.ReadCloser, up *Upload) error {
	r.Body = body
	mr, err := r.MultipartReader()
	if err != nil {
		return fmt.Errorf("read multipart: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read multipart: %w", err)
		}
		name := part.FormName()
		switch name {
		case "file":
			tmp := up.Workspace.path(downloadFile + ".part")
			if err := s.save(tmp, part); err != nil {
				return err
			}
			// Browsers send an empty part when no file was chosen.
			if info, statErr := os.Stat(tmp); statErr == nil && info.Size() == 0 {
				_ = os.Remove(tmp)
				continue
			}
			err = os.Rename(tmp, up.Workspace.path(downloadFile))
			up.Files = append(up.Files, "file")
		case "json":
			text, readErr := io.ReadAll(io.LimitReader(part, s.maxBytes))
			if readErr != nil {
				return fmt.Errorf("read json field: %w", readErr)
			}
			if strings.TrimSpace(string(text)) == "" {
				continue
			}
			err = os.WriteFile(up.Workspace.path(downloadFile), text, 0o644)
			up.Files = append(up.Files, "file")
		case "fields":
			err = s.save(up.Workspace.path(fieldsFile), part)
			up.Files = append(up.Files, "fields")
		case "tables":
			err = s.save(up.Workspace.path(tablesFile), part)
			up.Files = append(up.Files, "tables")
		default:
			value, readErr := io.ReadAll(io.LimitReader(part, maxFormValueBytes))
			if readErr != nil {
				return fmt.Errorf("read form field %s: %w", name, readErr)
			}
			up.Values.Add(name, string(value))
		}
		if err != nil {
			return err
		}
	}
}

func (s *Service) save(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("upload exceeds the maximum size of %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("write upload: %w", err)
	}
	return f.Close()
}

func (s *Service) download(ctx context.Context, rawURL, dst string) error {
	if !strings.HasPrefix(rawURL, "http") {
		return errors.New("`url` is empty or does not start with `http`")
	}
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("file download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("file download failed due to bad request status code")
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, s.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("file download failed: %w", err)
	}
	if n > s.maxBytes {
		return fmt.Errorf("download exceeds the maximum size of %d bytes", s.maxBytes)
	}
	return nil
}
