package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================

// memStore is an in-memory repository.Store.
//
// With transactional set, WithTx snapshots every record and restores the
// snapshot when fn fails, like a rollback. Without it, writes made before a
// failure stay, like a backend with no multi-document transactions.
//
// failOn makes the named operation (e.g. "Users.AddPoints") fail. failAfter
// lets that many calls through first.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*model.User
	matches     map[string]*model.Match
	predictions map[string]*model.Prediction

	transactional bool
	failOn        map[string]error
	failAfter     map[string]int
	calls         map[string]int
}

func newMemStore(transactional bool) *memStore {
	return &memStore{
		users:         make(map[string]*model.User),
		matches:       make(map[string]*model.Match),
		predictions:   make(map[string]*model.Prediction),
		transactional: transactional,
		failOn:        make(map[string]error),
		failAfter:     make(map[string]int),
		calls:         make(map[string]int),
	}
}

var _ repository.Store = (*memStore)(nil)

func (s *memStore) Repos() repository.Repositories {
	return repository.Repositories{
		Users:       memUsers{s},
		Matches:     memMatches{s},
		Predictions: memPredictions{s},
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) error {
	if !s.transactional {
		return fn(ctx, s.Repos())
	}

	s.mu.Lock()
	users, matches, predictions := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx, s.Repos()); err != nil {
		s.mu.Lock()
		s.users, s.matches, s.predictions = users, matches, predictions
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Transactional() bool { return s.transactional }
func (s *memStore) Ping(ctx context.Context) error { return nil }
func (s *memStore) Close() error { return nil }

func (s *memStore) snapshot() (map[string]*model.User, map[string]*model.Match, map[string]*model.Prediction) {
	users := make(map[string]*model.User, len(s.users))
	for k, v := range s.users {
		c := *v
		users[k] = &c
	}
	matches := make(map[string]*model.Match, len(s.matches))
	for k, v := range s.matches {
		c := copyMatch(v)
		matches[k] = c
	}
	predictions := make(map[string]*model.Prediction, len(s.predictions))
	for k, v := range s.predictions {
		c := *v
		predictions[k] = &c
	}
	return users, matches, predictions
}

// check counts a call to op and returns the injected error, if any.
// Callers hold s.mu.
func (s *memStore) check(op string) error {
	s.calls[op]++
	err, ok := s.failOn[op]
	if !ok {
		return nil
	}
	if s.calls[op] <= s.failAfter[op] {
		return nil
	}
	return err
}

func (s *memStore) failAt(op string, after int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
	s.failAfter[op] = after
	s.calls[op] = 0
}

func (s *memStore) clearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = make(map[string]error)
	s.failAfter = make(map[string]int)
}

func copyMatch(m *model.Match) *model.Match {
	c := *m
	if m.Result != nil {
		r := *m.Result
		c.Result = &r
	}
	c.Predictions = append([]string{}, m.Predictions...)
	return &c
}

// =========================================================================
// USERS
// =========================================================================

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.Create"); err != nil {
		return err
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
		if user.GitHubID != nil && u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			return apperror.Conflict("user", user.Email)
		}
	}
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	c := *user
	r.s.users[user.ID] = &c
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r memUsers) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.GitHubID != nil && *u.GitHubID == githubID {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", "github")
}

func (r memUsers) Update(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.Update"); err != nil {
		return err
	}
	existing, ok := r.s.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	for id, u := range r.s.users {
		if id != user.ID && u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	points := existing.Points
	c := *user
	c.Points = points
	c.UpdatedAt = time.Now().UTC()
	r.s.users[user.ID] = &c
	return nil
}

func (r memUsers) SetPoints(ctx context.Context, id string, points int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.SetPoints"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Points = points
	return nil
}

func (r memUsers) AddPoints(ctx context.Context, id string, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.AddPoints"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Points += delta
	return nil
}

func (r memUsers) ResetPoints(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.ResetPoints"); err != nil {
		return 0, err
	}
	for _, u := range r.s.users {
		u.Points = 0
	}
	return len(r.s.users), nil
}

func (r memUsers) Standings(ctx context.Context) ([]model.Standing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Users.Standings"); err != nil {
		return nil, err
	}
	out := make([]model.Standing, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, model.Standing{UserID: u.ID, Name: u.Name, Email: u.Email, Points: u.Points})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// =========================================================================
// MATCHES
// =========================================================================

type memMatches struct{ s *memStore }

func (r memMatches) Create(ctx context.Context, match *model.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.Create"); err != nil {
		return err
	}
	match.ID = xid.New().String()
	match.CreatedAt = time.Now().UTC()
	match.UpdatedAt = match.CreatedAt
	if match.Predictions == nil {
		match.Predictions = []string{}
	}
	r.s.matches[match.ID] = copyMatch(match)
	return nil
}

func (r memMatches) GetByID(ctx context.Context, id string) (*model.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.GetByID"); err != nil {
		return nil, err
	}
	m, ok := r.s.matches[id]
	if !ok {
		return nil, apperror.NotFound("match", id)
	}
	return copyMatch(m), nil
}

func (r memMatches) List(ctx context.Context, opts repository.MatchListOptions) ([]model.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Match, 0, len(r.s.matches))
	for _, m := range r.s.matches {
		out = append(out, *copyMatch(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].MatchDate.After(out[j].MatchDate)
		}
		return out[i].MatchDate.Before(out[j].MatchDate)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r memMatches) ListScored(ctx context.Context) ([]model.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.ListScored"); err != nil {
		return nil, err
	}
	out := []model.Match{}
	for _, m := range r.s.matches {
		if m.Scored() {
			out = append(out, *copyMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memMatches) Update(ctx context.Context, match *model.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.Update"); err != nil {
		return err
	}
	existing, ok := r.s.matches[match.ID]
	if !ok {
		return apperror.NotFound("match", match.ID)
	}
	c := copyMatch(match)
	c.Predictions = existing.Predictions
	c.UpdatedAt = time.Now().UTC()
	r.s.matches[match.ID] = c
	return nil
}

func (r memMatches) AppendPrediction(ctx context.Context, matchID, predictionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.AppendPrediction"); err != nil {
		return err
	}
	m, ok := r.s.matches[matchID]
	if !ok {
		return apperror.NotFound("match", matchID)
	}
	m.Predictions = append(m.Predictions, predictionID)
	return nil
}

func (r memMatches) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Matches.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.matches[id]; !ok {
		return apperror.NotFound("match", id)
	}
	delete(r.s.matches, id)
	return nil
}

// =========================================================================
// PREDICTIONS
// =========================================================================

type memPredictions struct{ s *memStore }

func (r memPredictions) Create(ctx context.Context, p *model.Prediction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.predictions {
		if existing.UserID == p.UserID && existing.MatchID == p.MatchID {
			return apperror.Conflict("prediction", p.UserID+"/"+p.MatchID)
		}
	}
	p.ID = xid.New().String()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = model.PredictionPending
	}
	c := *p
	r.s.predictions[p.ID] = &c
	return nil
}

func (r memPredictions) GetByUserAndMatch(ctx context.Context, userID, matchID string) (*model.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.predictions {
		if p.UserID == userID && p.MatchID == matchID {
			c := *p
			return &c, nil
		}
	}
	return nil, apperror.NotFound("prediction", userID+"/"+matchID)
}

func (r memPredictions) UpdatePredicted(ctx context.Context, id string, predicted model.Score) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.UpdatePredicted"); err != nil {
		return err
	}
	p, ok := r.s.predictions[id]
	if !ok {
		return apperror.NotFound("prediction", id)
	}
	p.Predicted = predicted
	return nil
}

func (r memPredictions) SetResult(ctx context.Context, id string, points int, status model.PredictionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.SetResult"); err != nil {
		return err
	}
	p, ok := r.s.predictions[id]
	if !ok {
		return apperror.NotFound("prediction", id)
	}
	p.Points = points
	p.Status = status
	return nil
}

func (r memPredictions) ListByMatch(ctx context.Context, matchID string) ([]model.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.ListByMatch"); err != nil {
		return nil, err
	}
	out := []model.Prediction{}
	for _, p := range r.s.predictions {
		if p.MatchID == matchID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPredictions) ListByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Prediction{}
	for _, p := range r.s.predictions {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memPredictions) ResetAll(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.ResetAll"); err != nil {
		return 0, err
	}
	awarded := 0
	for _, p := range r.s.predictions {
		if p.Points > 0 {
			awarded++
		}
		p.Points = 0
		p.Status = model.PredictionPending
	}
	return awarded, nil
}

func (r memPredictions) DeleteByMatch(ctx context.Context, matchID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("Predictions.DeleteByMatch"); err != nil {
		return 0, err
	}
	n := 0
	for id, p := range r.s.predictions {
		if p.MatchID == matchID {
			delete(r.s.predictions, id)
			n++
		}
	}
	return n, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedUser inserts a user with the given points total.
func (s *memStore) seedUser(name string, points int) *model.User {
	u := &model.User{Name: name, Email: name + "@example.com", Points: points}
	_ = memUsers{s}.Create(context.Background(), u)
	s.mu.Lock()
	s.users[u.ID].Points = points
	s.mu.Unlock()
	return u
}

// seedMatch inserts a match. A non-nil result makes it finished.
func (s *memStore) seedMatch(home, away string, result *model.Score) *model.Match {
	m := &model.Match{
		HomeTeam:  home,
		AwayTeam:  away,
		MatchDate: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		Status:    model.StatusUpcoming,
	}
	if result != nil {
		m.Status = model.StatusFinished
		m.Result = result
	}
	_ = memMatches{s}.Create(context.Background(), m)
	return m
}

// seedPrediction inserts a prediction as it would be stored after scoring
// with the given points and status.
func (s *memStore) seedPrediction(userID, matchID string, predicted model.Score, points int, status model.PredictionStatus) *model.Prediction {
	p := &model.Prediction{
		UserID:    userID,
		MatchID:   matchID,
		Predicted: predicted,
		Points:    points,
		Status:    status,
	}
	_ = memPredictions{s}.Create(context.Background(), p)
	_ = memMatches{s}.AppendPrediction(context.Background(), matchID, p.ID)
	return p
}

func (s *memStore) points(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Points
}

func (s *memStore) prediction(id string) model.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.predictions[id]
}

// derivedPoints sums the points of the user's calculated predictions.
func (s *memStore) derivedPoints(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, p := range s.predictions {
		if p.UserID == userID && p.Status == model.PredictionCalculated {
			total += p.Points
		}
	}
	return total
}

func score(home, away int) *model.Score {
	return &model.Score{Home: home, Away: away}
}
