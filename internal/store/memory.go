package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/quota"
)

// Memory is an in-memory Stores implementation with the same conditional
// semantics as the Mongo one. It backs the test suite; nothing in
// production wires it.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]models.User // keyed by hex uid
	cds       map[string]models.CD
	files     map[string]models.File
	tokens    map[string]models.ShareToken
	emailLogs map[string]models.EmailLog
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]models.User),
		cds:       make(map[string]models.CD),
		files:     make(map[string]models.File),
		tokens:    make(map[string]models.ShareToken),
		emailLogs: make(map[string]models.EmailLog),
	}
}

func (m *Memory) CreateUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || (user.Username != "" && u.Username == user.Username) {
			return ErrDuplicate
		}
	}
	m.users[user.ID.Hex()] = user
	return nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) UserByID(_ context.Context, uid string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) SetUsername(_ context.Context, uid, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	for id, other := range m.users {
		if id != uid && other.Username == username {
			return ErrDuplicate
		}
	}
	u.Username = username
	m.users[uid] = u
	return nil
}

func (m *Memory) CreateCD(_ context.Context, cd models.CD) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cds[cd.ID]; ok {
		return ErrDuplicate
	}
	m.cds[cd.ID] = cd
	return nil
}

func (m *Memory) CDByID(_ context.Context, id string) (models.CD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cd, ok := m.cds[id]
	if !ok {
		return models.CD{}, ErrNotFound
	}
	return cd, nil
}

func (m *Memory) CDsByOwner(_ context.Context, uid string) ([]models.CD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CD
	for _, cd := range m.cds {
		if cd.UserID == uid && cd.DeletedAt == nil {
			out = append(out, cd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateCD(_ context.Context, cd models.CD) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.cds[cd.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrNotFound
	}
	existing.Name = cd.Name
	existing.Label = cd.Label
	existing.IsPublic = cd.IsPublic
	existing.PublicAt = cd.PublicAt
	m.cds[cd.ID] = existing
	return nil
}

func (m *Memory) AdmitFile(_ context.Context, cdID string, sizeBytes int64) (models.CD, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.cds[cdID]
	if !ok || cd.DeletedAt != nil {
		return models.CD{}, ErrNotFound
	}
	if cd.StorageUsedBytes+sizeBytes > cd.StorageLimitBytes {
		return models.CD{}, &quota.QuotaError{
			Ceiling:    quota.CeilingCD,
			SizeBytes:  cd.StorageUsedBytes + sizeBytes,
			LimitBytes: cd.StorageLimitBytes,
		}
	}
	cd.StorageUsedBytes += sizeBytes
	cd.FileCount++
	m.cds[cdID] = cd
	return cd, nil
}

func (m *Memory) ReleaseFile(_ context.Context, cdID string, sizeBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.cds[cdID]
	if !ok {
		return ErrNotFound
	}
	newUsed, newCount, err := quota.Release(cd.StorageUsedBytes, cd.FileCount, sizeBytes)
	cd.StorageUsedBytes = newUsed
	cd.FileCount = newCount
	m.cds[cdID] = cd
	return err
}

func (m *Memory) MarkDeleted(_ context.Context, cdID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.cds[cdID]
	if !ok {
		return ErrNotFound
	}
	cd.DeletedAt = &at
	m.cds[cdID] = cd
	return nil
}

func (m *Memory) DeletedCDs(_ context.Context) ([]models.CD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CD
	for _, cd := range m.cds {
		if cd.DeletedAt != nil {
			out = append(out, cd)
		}
	}
	return out, nil
}

func (m *Memory) DeleteCD(_ context.Context, cdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cds, cdID)
	return nil
}

func (m *Memory) PublicCDs(_ context.Context) ([]models.CD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CD
	for _, cd := range m.cds {
		if cd.IsPublic && cd.DeletedAt == nil {
			out = append(out, cd)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PublicAt, out[j].PublicAt
		if pi == nil || pj == nil {
			return pj == nil && pi != nil
		}
		return pi.After(*pj)
	})
	return out, nil
}

func (m *Memory) IncrementViews(_ context.Context, cdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.cds[cdID]
	if !ok || !cd.IsPublic || cd.DeletedAt != nil {
		return ErrNotFound
	}
	cd.ViewCount++
	m.cds[cdID] = cd
	return nil
}

func (m *Memory) CreateFile(_ context.Context, f models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; ok {
		return ErrDuplicate
	}
	m.files[f.ID] = f
	return nil
}

func (m *Memory) FileByID(_ context.Context, cdID, fileID string) (models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileID]
	if !ok || f.CDID != cdID {
		return models.File{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) FilesByCD(_ context.Context, cdID string) ([]models.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.File
	for _, f := range m.files {
		if f.CDID == cdID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *Memory) DeleteFile(_ context.Context, cdID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.CDID != cdID {
		return ErrNotFound
	}
	delete(m.files, fileID)
	return nil
}

func (m *Memory) DeleteFilesByCD(_ context.Context, cdID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, f := range m.files {
		if f.CDID == cdID {
			delete(m.files, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateToken(_ context.Context, t models.ShareToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.Token]; ok {
		return ErrDuplicate
	}
	m.tokens[t.Token] = t
	return nil
}

func (m *Memory) TokenByID(_ context.Context, token string) (models.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[token]
	if !ok {
		return models.ShareToken{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) DeleteToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *Memory) DeleteTokensByCD(_ context.Context, cdID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.CDID == cdID {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) IncrementAccess(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return ErrNotFound
	}
	t.AccessCount++
	m.tokens[token] = t
	return nil
}

func (m *Memory) CreateEmailLog(_ context.Context, l models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailLogs[l.ID] = l
	return nil
}

func (m *Memory) ResolveEmailLog(_ context.Context, id string, status models.EmailStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.emailLogs[id]
	if !ok || l.Status != models.EmailPending {
		return ErrNotFound
	}
	l.Status = status
	l.Error = errMsg
	m.emailLogs[id] = l
	return nil
}

func (m *Memory) EmailLogsByUser(_ context.Context, uid string) ([]models.EmailLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.EmailLog
	for _, l := range m.emailLogs {
		if l.UserID == uid {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

var _ Stores = (*Memory)(nil)
var _ Stores = (*Mongo)(nil)
