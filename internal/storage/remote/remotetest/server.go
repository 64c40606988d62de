// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/storage/remote"
)

// RootID is the parent of top-level folders
const RootID = "root"

type file struct {
	meta    remote.File
	content []byte
}

// Server is an in-memory file service. The zero value is not usable; call New.
type Server struct {
	mu        sync.Mutex
	files     map[string]*file
	token     string
	clock     time.Time
	failures  map[string]error
	downloads int
	calls     map[string]int
}

// New returns an empty server that accepts any non-empty token
func New() *Server {
	return &Server{
		files:    make(map[string]*file),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Fail makes every later op call on id return err. An empty id matches any file.
func (s *Server) Fail(op, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+":"+id] = err
}

// ClearFailures removes all injected failures
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.failures)
}

// Downloads returns how many times file content was fetched
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

// Calls returns how many times op was invoked
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Token returns the bearer token last set by the client
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Put seeds a file under parentID, bypassing auth and failure injection
func (s *Server) Put(parentID, name string, content []byte) remote.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	mime := remote.RecordMimeType
	if content == nil {
		mime = remote.FolderMimeType
	}
	return s.create(remote.File{Name: name, MimeType: mime, Parents: []string{parentID}}, content)
}

// Touch rewrites content out of band and bumps the modified time
func (s *Server) Touch(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.content = slices.Clone(content)
		f.meta.ModifiedTime = s.tick()
	}
}

// Remove hard-deletes a file out of band
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
}

// Content returns a file's bytes
func (s *Server) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(f.content), true
}

// Children lists the files directly under parentID, sorted by name
func (s *Server) Children(parentID string) []remote.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(remote.Query{ParentID: parentID})
}

// Find returns the first file named name under parentID
func (s *Server) Find(parentID, name string) (remote.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.list(remote.Query{ParentID: parentID, Name: name})
	if len(files) == 0 {
		return remote.File{}, false
	}
	return files[0], true
}

// === remote.API ===

func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Server) ListFiles(ctx context.Context, q remote.Query) ([]remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "list", q.ParentID); err != nil {
		return nil, err
	}
	return s.list(q), nil
}

func (s *Server) GetFile(ctx context.Context, id string) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "get", id); err != nil {
		return remote.File{}, err
	}
	f, ok := s.files[id]
	if !ok {
		return remote.File{}, notFound(id)
	}
	return cloneFile(f.meta), nil
}

func (s *Server) Download(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "download", id); err != nil {
		return nil, err
	}
	f, ok := s.files[id]
	if !ok {
		return nil, notFound(id)
	}
	s.downloads++
	return slices.Clone(f.content), nil
}

func (s *Server) CreateFile(ctx context.Context, meta remote.File, content []byte) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create", ""); err != nil {
		return remote.File{}, err
	}
	return s.create(meta, content), nil
}

func (s *Server) UpdateFile(ctx context.Context, id, name string, content []byte) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update", id); err != nil {
		return remote.File{}, err
	}
	f, ok := s.files[id]
	if !ok {
		return remote.File{}, notFound(id)
	}
	if name != "" {
		f.meta.Name = name
	}
	f.content = slices.Clone(content)
	f.meta.ModifiedTime = s.tick()
	return cloneFile(f.meta), nil
}

func (s *Server) MoveFile(ctx context.Context, id, newName string, addParents, removeParents []string) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "move", id); err != nil {
		return remote.File{}, err
	}
	f, ok := s.files[id]
	if !ok {
		return remote.File{}, notFound(id)
	}
	if newName != "" {
		f.meta.Name = newName
	}
	f.meta.Parents = slices.DeleteFunc(f.meta.Parents, func(p string) bool {
		return slices.Contains(removeParents, p)
	})
	for _, p := range addParents {
		if !slices.Contains(f.meta.Parents, p) {
			f.meta.Parents = append(f.meta.Parents, p)
		}
	}
	f.meta.ModifiedTime = s.tick()
	return cloneFile(f.meta), nil
}

// === helpers (mu held) ===

func (s *Server) check(ctx context.Context, op, id string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.token == "" {
		return domain.ErrAuthFailed
	}
	if err, ok := s.failures[op+":"+id]; ok {
		return err
	}
	if err, ok := s.failures[op+":"]; ok {
		return err
	}
	return nil
}

func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) create(meta remote.File, content []byte) remote.File {
	meta.ID = uuid.NewString()
	meta.Parents = slices.Clone(meta.Parents)
	if len(meta.Parents) == 0 {
		meta.Parents = []string{RootID}
	}
	meta.ModifiedTime = s.tick()
	s.files[meta.ID] = &file{meta: meta, content: slices.Clone(content)}
	return cloneFile(meta)
}

func (s *Server) list(q remote.Query) []remote.File {
	var out []remote.File
	for _, f := range s.files {
		m := f.meta
		switch {
		case q.ParentID != "" && !slices.Contains(m.Parents, q.ParentID),
			q.Name != "" && m.Name != q.Name,
			q.MimeType != "" && m.MimeType != q.MimeType,
			q.FoldersOnly && !m.IsFolder(),
			q.FilesOnly && m.IsFolder(),
			m.Trashed != q.Trashed:
			continue
		}
		out = append(out, cloneFile(m))
	}
	slices.SortFunc(out, func(a, b remote.File) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func cloneFile(f remote.File) remote.File {
	f.Parents = slices.Clone(f.Parents)
	return f
}

func notFound(id string) error {
	return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
}
