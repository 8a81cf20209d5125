package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority é a classe de serviço de uma requisição.
// O valor numérico define a ordem: menor valor é atendido primeiro.
// O zero (PriorityUnset) não é uma classe; OrDefault o trata como MEDIUM.
type Priority int

const (
	PriorityUnset Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Priorities lista as classes na ordem de atendimento.
var Priorities = [...]Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// OrDefault troca PriorityUnset por PriorityMedium.
func (p Priority) OrDefault() Priority {
	if p == PriorityUnset {
		return PriorityMedium
	}
	return p
}

// Index é a posição da classe (0 = HIGH) em tabelas por prioridade.
// Só faz sentido para prioridades válidas.
func (p Priority) Index() int { return int(p - PriorityHigh) }

// Before informa se p deve ser atendida antes de other.
func (p Priority) Before(other Priority) bool { return p < other }

// SLA é o prazo de atendimento usado para ordenar a fila da classe.
func (p Priority) SLA() time.Duration {
	if p == PriorityHigh {
		return 15 * time.Second
	}
	return 30 * time.Second
}

// ParsePriority aceita HIGH, MEDIUM ou LOW (case-insensitive).
// String vazia resulta em MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "LOW":
		return PriorityLow, nil
	}
	return PriorityMedium, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
