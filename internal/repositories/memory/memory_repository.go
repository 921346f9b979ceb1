package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"gorm.io/gorm"
)

// Repository is an in-memory implementation of repositories.Repository for
// local mode and tests. A single mutex guards all maps, so WithTransaction
// gives the caller the same serializability the Postgres row locks provide.
type Repository struct {
	mu sync.Mutex

	quizzes  map[uint]*models.Quiz
	attempts map[uint]*models.QuizAttempt
	nextID   uint

	quiz    *quizMemory
	attempt *attemptMemory
}

func NewRepository() *Repository {
	r := &Repository{
		quizzes:  make(map[uint]*models.Quiz),
		attempts: make(map[uint]*models.QuizAttempt),
		nextID:   1,
	}
	r.quiz = &quizMemory{repo: r}
	r.attempt = &attemptMemory{repo: r}
	return r
}

// SeedQuiz registers a quiz definition for tests and local fixtures.
func (r *Repository) SeedQuiz(quiz *models.Quiz) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quizzes[quiz.ID] = quiz
}

func (r *Repository) Quiz() repositories.QuizRepository {
	return r.quiz
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

// WithTransaction serializes the whole callback under the repository mutex.
// The callback works against a copy of the attempt store; its writes apply
// only when fn succeeds, mirroring the rollback of the database transaction
// this stands in for. Nested transactions are not supported.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &Repository{
		quizzes:  r.quizzes,
		attempts: make(map[uint]*models.QuizAttempt, len(r.attempts)),
		nextID:   r.nextID,
	}
	for id, attempt := range r.attempts {
		clone := *attempt
		tx.attempts[id] = &clone
	}
	tx.quiz = &quizMemory{repo: tx, locked: true}
	tx.attempt = &attemptMemory{repo: tx, locked: true}

	if err := fn(tx); err != nil {
		return err
	}
	r.attempts = tx.attempts
	r.nextID = tx.nextID
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

func (r *Repository) Close() error {
	return nil
}

func (r *Repository) lock() func() {
	r.mu.Lock()
	return r.mu.Unlock
}

// ===== QUIZ =====

type quizMemory struct {
	repo   *Repository
	locked bool
}

func (q *quizMemory) acquire() func() {
	if q.locked {
		return func() {}
	}
	return q.repo.lock()
}

func (q *quizMemory) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	defer q.acquire()()
	quiz, ok := q.repo.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (q *quizMemory) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Quiz, error) {
	defer q.acquire()()
	var out []*models.Quiz
	for _, id := range ids {
		if quiz, ok := q.repo.quizzes[id]; ok {
			out = append(out, quiz)
		}
	}
	return out, nil
}

func (q *quizMemory) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	defer q.acquire()()
	_, ok := q.repo.quizzes[id]
	return ok, nil
}

// ===== ATTEMPT =====

type attemptMemory struct {
	repo   *Repository
	locked bool
}

func (a *attemptMemory) acquire() func() {
	if a.locked {
		return func() {}
	}
	return a.repo.lock()
}

func (a *attemptMemory) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	defer a.acquire()()
	if attempt.ID == 0 {
		attempt.ID = a.repo.nextID
		a.repo.nextID++
	}
	clone := *attempt
	a.repo.attempts[attempt.ID] = &clone
	return nil
}

func (a *attemptMemory) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	defer a.acquire()()
	attempt, ok := a.repo.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *attempt
	return &clone, nil
}

func (a *attemptMemory) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	return a.GetByID(ctx, tx, id)
}

func (a *attemptMemory) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	defer a.acquire()()
	if _, ok := a.repo.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	clone := *attempt
	a.repo.attempts[attempt.ID] = &clone
	return nil
}

func (a *attemptMemory) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	defer a.acquire()()
	delete(a.repo.attempts, id)
	return nil
}

// LockUserQuiz is a no-op: the repository mutex already serializes whole
// transactions.
func (a *attemptMemory) LockUserQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) error {
	return nil
}

func (a *attemptMemory) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error) {
	defer a.acquire()()
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.InProgress {
			clone := *attempt
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (a *attemptMemory) HasActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (bool, error) {
	defer a.acquire()()
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.InProgress {
			return true, nil
		}
	}
	return false, nil
}

func (a *attemptMemory) GetCompletedByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) ([]*models.QuizAttempt, error) {
	defer a.acquire()()
	var out []*models.QuizAttempt
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && !attempt.InProgress {
			clone := *attempt
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (a *attemptMemory) GetByUserAndQuizzes(ctx context.Context, tx *gorm.DB, userID string, quizIDs []uint) ([]*models.QuizAttempt, error) {
	defer a.acquire()()
	wanted := make(map[uint]bool, len(quizIDs))
	for _, id := range quizIDs {
		wanted[id] = true
	}

	var out []*models.QuizAttempt
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && wanted[attempt.QuizID] {
			clone := *attempt
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuizID != out[j].QuizID {
			return out[i].QuizID < out[j].QuizID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (a *attemptMemory) ListByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	defer a.acquire()()
	var out []*models.QuizAttempt
	for _, attempt := range a.repo.attempts {
		if attempt.UserID != userID || attempt.QuizID != quizID {
			continue
		}
		if filters.InProgress != nil && attempt.InProgress != *filters.InProgress {
			continue
		}
		clone := *attempt
		out = append(out, &clone)
	}

	asc := filters.SortOrder == "asc" || filters.SortOrder == "ASC"
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].AttemptNumber < out[j].AttemptNumber
		}
		return out[i].AttemptNumber > out[j].AttemptNumber
	})

	total := int64(len(out))
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, total, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(out) {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (a *attemptMemory) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int, error) {
	defer a.acquire()()
	max := 0
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.AttemptNumber > max {
			max = attempt.AttemptNumber
		}
	}
	return max, nil
}

func (a *attemptMemory) SetBestAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint, attemptID uint) error {
	defer a.acquire()()
	target, ok := a.repo.attempts[attemptID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, attempt := range a.repo.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID {
			attempt.IsBestScore = false
		}
	}
	target.IsBestScore = true
	return nil
}
