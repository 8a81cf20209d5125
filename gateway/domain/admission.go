package domain

import "time"

// QueueEntry é uma posição na fila de admissão.
type QueueEntry struct {
	Identity string    `json:"identity" msgpack:"identity"`
	Priority Priority  `json:"priority" msgpack:"priority"`
	JoinedAt time.Time `json:"joinedAt" msgpack:"joined_at"`
	Deadline time.Time `json:"deadline" msgpack:"deadline"`
	Token    int64     `json:"token" msgpack:"token"`
}

type AdmissionOutcome int

const (
	Admitted AdmissionOutcome = iota
	Queued
	Rejected
)

// AdmissionResult é a resposta do controlador de admissão.
// Token e Priority só são relevantes quando Outcome == Queued.
type AdmissionResult struct {
	Outcome     AdmissionOutcome
	Token       int64
	Priority    Priority
	Reason      Reason
	Position    int // 1-based, dentro da classe
	ActiveUsers int
	MaxUsers    int
}

// QueueCounts conta entradas por classe.
type QueueCounts struct {
	High   int `json:"HIGH"`
	Medium int `json:"MEDIUM"`
	Low    int `json:"LOW"`
	Total  int `json:"total"`
}

// AdmissionStatus é a visão da ocupação atual.
type AdmissionStatus struct {
	MaxUsers    int
	ActiveUsers int
	Queues      QueueCounts
}
