package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"smartcrop/api/internal/models"
	"smartcrop/api/internal/queue"
	"smartcrop/api/internal/repository"
)

type memUsers struct {
	mu        sync.Mutex
	byID      map[string]models.User
	createErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]models.User{}}
}

func (m *memUsers) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrUserDuplicate
		}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type memObjects struct {
	puts    map[string][]byte
	removed []string
	putErr  error
}

func newMemObjects() *memObjects { return &memObjects{puts: map[string][]byte{}} }

func (m *memObjects) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) (int64, error) {
	if m.putErr != nil {
		return 0, m.putErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return 0, err
	}
	m.puts[bucket+"/"+key] = buf.Bytes()
	return n, nil
}

func (m *memObjects) Remove(_ context.Context, bucket, key string) error {
	m.removed = append(m.removed, bucket+"/"+key)
	return nil
}

type memDiagnoses struct {
	rows []models.Diagnosis
}

func (m *memDiagnoses) Create(_ context.Context, d models.Diagnosis) error {
	m.rows = append(m.rows, d)
	return nil
}

func (m *memDiagnoses) ListByUser(_ context.Context, userID string, limit int) ([]models.Diagnosis, error) {
	var out []models.Diagnosis
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].UserID != nil && *m.rows[i].UserID == userID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

type memQueue struct {
	tasks []queue.Task
	err   error
}

func (m *memQueue) Enqueue(_ context.Context, task queue.Task) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.tasks = append(m.tasks, task)
	return "1-0", nil
}

type stubPredictor struct {
	label string
	err   error
	calls int
	crop  string
	mime  string
}

func (s *stubPredictor) Predict(_ context.Context, crop string, _ []byte, mimeType string) (string, error) {
	s.calls++
	s.crop = crop
	s.mime = mimeType
	return s.label, s.err
}

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(context.Context, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type memAnswers struct {
	entries map[string]string
	getErr  error
}

func (m *memAnswers) Get(_ context.Context, prompt string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.entries[prompt]
	return v, ok, nil
}

func (m *memAnswers) Set(_ context.Context, prompt, reply string) error {
	m.entries[prompt] = reply
	return nil
}

var errBoom = errors.New("boom")
