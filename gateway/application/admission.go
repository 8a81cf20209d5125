package application

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"overload-gateway/gateway/clock"
	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

type AdmissionConfig struct {
	MaxUsers int
	// MaxQueue limita o total de entradas nas filas; 0 = sem limite.
	MaxQueue int
}

type admissionState struct {
	MaxUsers    int                    `msgpack:"max_users"`
	ActiveUsers int                    `msgpack:"active_users"`
	NextToken   int64                  `msgpack:"next_token"`
	Queues      [3][]domain.QueueEntry `msgpack:"queues"`
}

func (s *admissionState) queued() int {
	n := 0
	for _, q := range s.Queues {
		n += len(q)
	}
	return n
}

// find retorna a classe e o índice da identidade nas filas.
func (s *admissionState) find(identity string) (domain.Priority, int, bool) {
	for _, p := range domain.Priorities {
		for i, e := range s.Queues[p.Index()] {
			if e.Identity == identity {
				return p, i, true
			}
		}
	}
	return 0, 0, false
}

// head é a primeira classe não-vazia (HIGH, MEDIUM, LOW).
func (s *admissionState) head() (domain.Priority, bool) {
	for _, p := range domain.Priorities {
		if len(s.Queues[p.Index()]) > 0 {
			return p, true
		}
	}
	return 0, false
}

// insert mantém a classe em ordem crescente de deadline; empates ficam
// na ordem de chegada.
func (s *admissionState) insert(e domain.QueueEntry) int {
	q := s.Queues[e.Priority.Index()]
	i := sort.Search(len(q), func(i int) bool { return q[i].Deadline.After(e.Deadline) })
	s.Queues[e.Priority.Index()] = slices.Insert(q, i, e)
	return i
}

// Admission limita sessões ativas a maxUsers; excedentes esperam em três
// filas de prioridade ordenadas por deadline (EDF). A promoção é por polling:
// o cliente enfileirado chama Allow de novo até ser admitido.
type Admission struct {
	store domain.StateStore
	codec domain.Codec
	cfg   AdmissionConfig
	key   string
	clk   clock.Clock
	log   *zap.Logger
}

type AdmissionOption func(*Admission)

func WithAdmissionClock(c clock.Clock) AdmissionOption {
	return func(a *Admission) { a.clk = clock.OrReal(c) }
}

func WithAdmissionLogger(l *zap.Logger) AdmissionOption {
	return func(a *Admission) {
		if l != nil {
			a.log = l
		}
	}
}

func WithAdmissionKey(key string) AdmissionOption {
	return func(a *Admission) { a.key = key }
}

func NewAdmission(store domain.StateStore, codec domain.Codec, cfg AdmissionConfig, opts ...AdmissionOption) *Admission {
	a := &Admission{
		store: store,
		codec: codec,
		cfg:   cfg,
		key:   "admission",
		clk:   clock.Real{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Admission) initial() admissionState {
	return admissionState{MaxUsers: a.cfg.MaxUsers}
}

func (a *Admission) update(ctx context.Context, fn func(*admissionState) (bool, error)) error {
	return mutate(ctx, a.store, a.codec, a.key, a.initial, fn)
}

func (a *Admission) Allow(ctx context.Context, identity string, p domain.Priority) (domain.AdmissionResult, error) {
	p = p.OrDefault()
	if !p.Valid() {
		return domain.AdmissionResult{}, fmt.Errorf("%w: %d", domain.ErrInvalidPriority, int(p))
	}
	now := a.clk.Now()
	var res domain.AdmissionResult

	err := a.update(ctx, func(st *admissionState) (bool, error) {
		admit := func() {
			st.ActiveUsers++
			res = domain.AdmissionResult{Outcome: domain.Admitted, ActiveUsers: st.ActiveUsers, MaxUsers: st.MaxUsers}
		}

		if st.queued() > 0 {
			if cls, idx, ok := st.find(identity); ok {
				head, _ := st.head()
				if cls == head && idx == 0 && st.ActiveUsers < st.MaxUsers {
					st.Queues[cls.Index()] = slices.Delete(st.Queues[cls.Index()], 0, 1)
					admit()
					return true, nil
				}
				e := st.Queues[cls.Index()][idx]
				res = domain.AdmissionResult{
					Outcome:     domain.Queued,
					Token:       e.Token,
					Priority:    e.Priority,
					Position:    idx + 1,
					ActiveUsers: st.ActiveUsers,
					MaxUsers:    st.MaxUsers,
				}
				return false, nil
			}
		} else if st.ActiveUsers < st.MaxUsers {
			admit()
			return true, nil
		}

		if a.cfg.MaxQueue > 0 && st.queued() >= a.cfg.MaxQueue {
			res = domain.AdmissionResult{
				Outcome:     domain.Rejected,
				Reason:      domain.ReasonServerFull,
				ActiveUsers: st.ActiveUsers,
				MaxUsers:    st.MaxUsers,
			}
			return false, nil
		}

		st.NextToken++
		idx := st.insert(domain.QueueEntry{
			Identity: identity,
			Priority: p,
			JoinedAt: now,
			Deadline: now.Add(p.SLA()),
			Token:    st.NextToken,
		})
		res = domain.AdmissionResult{
			Outcome:     domain.Queued,
			Token:       st.NextToken,
			Priority:    p,
			Position:    idx + 1,
			ActiveUsers: st.ActiveUsers,
			MaxUsers:    st.MaxUsers,
		}
		return true, nil
	})
	if err != nil {
		return domain.AdmissionResult{}, fmt.Errorf("admission allow: %w", err)
	}
	return res, nil
}

// Release encerra uma sessão (activeUsers-1, mínimo 0). Não promove ninguém.
func (a *Admission) Release(ctx context.Context, identity string) (int, error) {
	var active int
	err := a.update(ctx, func(st *admissionState) (bool, error) {
		if st.ActiveUsers > 0 {
			st.ActiveUsers--
		}
		active = st.ActiveUsers
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("admission release: %w", err)
	}
	a.log.Debug("session released", zap.String("identity", identity), zap.Int("active_users", active))
	return active, nil
}

// CleanUpExpired descarta entradas com idade (now - joinedAt) acima de timeout.
func (a *Admission) CleanUpExpired(ctx context.Context, timeout time.Duration) (int, error) {
	now := a.clk.Now()
	var dropped int
	err := a.update(ctx, func(st *admissionState) (bool, error) {
		dropped = 0
		for _, p := range domain.Priorities {
			before := len(st.Queues[p.Index()])
			st.Queues[p.Index()] = slices.DeleteFunc(st.Queues[p.Index()], func(e domain.QueueEntry) bool {
				return now.Sub(e.JoinedAt) > timeout
			})
			dropped += before - len(st.Queues[p.Index()])
		}
		return dropped > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("admission cleanup: %w", err)
	}
	return dropped, nil
}

// UpdateMaxUsers troca o teto imediatamente. Sessões ativas acima do novo
// teto não são removidas; apenas novas admissões ficam bloqueadas.
func (a *Admission) UpdateMaxUsers(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: maxUsers=%d", domain.ErrInvalidConfig, n)
	}
	var prev int
	err := a.update(ctx, func(st *admissionState) (bool, error) {
		prev = st.MaxUsers
		if st.MaxUsers == n {
			return false, nil
		}
		st.MaxUsers = n
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("admission update max users: %w", err)
	}
	if prev != n {
		a.log.Info("admission ceiling changed", zap.Int("max_users", n), zap.Int("prev", prev))
	}
	return nil
}

func (a *Admission) Status(ctx context.Context) (domain.AdmissionStatus, error) {
	st, err := read(ctx, a.store, a.codec, a.key, a.initial)
	if err != nil {
		return domain.AdmissionStatus{}, fmt.Errorf("admission status: %w", err)
	}
	return domain.AdmissionStatus{
		MaxUsers:    st.MaxUsers,
		ActiveUsers: st.ActiveUsers,
		Queues:      countQueues(st.Queues),
	}, nil
}

// Queue lista as entradas na ordem de atendimento.
func (a *Admission) Queue(ctx context.Context) ([]domain.QueueEntry, error) {
	st, err := read(ctx, a.store, a.codec, a.key, a.initial)
	if err != nil {
		return nil, fmt.Errorf("admission queue: %w", err)
	}
	out := make([]domain.QueueEntry, 0, st.queued())
	for _, p := range domain.Priorities {
		out = append(out, st.Queues[p.Index()]...)
	}
	return out, nil
}

func countQueues(q [3][]domain.QueueEntry) domain.QueueCounts {
	c := domain.QueueCounts{
		High:   len(q[domain.PriorityHigh.Index()]),
		Medium: len(q[domain.PriorityMedium.Index()]),
		Low:    len(q[domain.PriorityLow.Index()]),
	}
	c.Total = c.High + c.Medium + c.Low
	return c
}
