// Package certificate issues course completion certificates. Issuing is idempotent per
// learner and course.
package certificate

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Request asks for a certificate after a certificate-eligible quiz result.
type Request struct {
	LearnerID  string
	CourseID   string
	TemplateID string
	QuizID     string
	Percentage float64
}

// Certificate is an issued completion certificate.
type Certificate struct {
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	LearnerID  string    `json:"learner_id"`
	CourseID   string    `json:"course_id"`
	TemplateID string    `json:"template_id"`
	QuizID     string    `json:"quiz_id"`
	Percentage float64   `json:"percentage"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Registry issues and looks up certificates.
type Registry interface {
	// Issue returns the certificate for the learner and course, creating it on the
	// first call. created is false when the certificate already existed.
	Issue(ctx context.Context, req Request) (cert Certificate, created bool, err error)
	Get(ctx context.Context, learnerID, courseID string) (Certificate, bool, error)
}

// Options configures how certificates are minted.
type Options struct {
	// Key signs serials. Up to 64 bytes; empty means unkeyed.
	Key   []byte
	Now   func() time.Time
	NewID func() string
}

type minter struct {
	key   []byte
	now   func() time.Time
	newID func() string
}

func newMinter(opts Options) minter {
	m := minter{key: opts.Key, now: opts.Now, newID: opts.NewID}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

func (m minter) mint(req Request) (Certificate, error) {
	if req.LearnerID == "" || req.CourseID == "" {
		return Certificate{}, fmt.Errorf("learner_id and course_id are required")
	}
	if req.TemplateID == "" {
		return Certificate{}, fmt.Errorf("template_id is required")
	}
	serial, err := Serial(m.key, req.LearnerID, req.CourseID, req.TemplateID)
	if err != nil {
		return Certificate{}, err
	}
	return Certificate{
		ID:         m.newID(),
		Serial:     serial,
		LearnerID:  req.LearnerID,
		CourseID:   req.CourseID,
		TemplateID: req.TemplateID,
		QuizID:     req.QuizID,
		Percentage: req.Percentage,
		IssuedAt:   m.now(),
	}, nil
}

// Serial derives the verification serial of a certificate, formatted as
// five dash-separated groups of four hex digits.
func Serial(key []byte, learnerID, courseID, templateID string) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("serial hash: %w", err)
	}
	h.Write([]byte(learnerID))
	h.Write([]byte{0})
	h.Write([]byte(courseID))
	h.Write([]byte{0})
	h.Write([]byte(templateID))

	digest := strings.ToUpper(hex.EncodeToString(h.Sum(nil)))[:20]
	groups := make([]string, 0, 5)
	for i := 0; i < len(digest); i += 4 {
		groups = append(groups, digest[i:i+4])
	}
	return strings.Join(groups, "-"), nil
}

// Verify reports whether cert carries the serial its fields produce under key.
func Verify(key []byte, cert Certificate) bool {
	want, err := Serial(key, cert.LearnerID, cert.CourseID, cert.TemplateID)
	return err == nil && want == cert.Serial
}

// MemoryRegistry is an in-memory Registry.
type MemoryRegistry struct {
	minter
	certs map[string]Certificate
	mu    sync.Mutex
}

// NewMemoryRegistry creates an in-memory certificate registry.
func NewMemoryRegistry(opts Options) *MemoryRegistry {
	return &MemoryRegistry{
		minter: newMinter(opts),
		certs:  make(map[string]Certificate),
	}
}

func (r *MemoryRegistry) Issue(_ context.Context, req Request) (Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := req.LearnerID + ":" + req.CourseID
	if c, ok := r.certs[key]; ok {
		return c, false, nil
	}
	c, err := r.mint(req)
	if err != nil {
		return Certificate{}, false, err
	}
	r.certs[key] = c
	return c, true, nil
}

func (r *MemoryRegistry) Get(_ context.Context, learnerID, courseID string) (Certificate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[learnerID+":"+courseID]
	return c, ok, nil
}
