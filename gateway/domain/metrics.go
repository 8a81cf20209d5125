package domain

import (
	"context"
	"time"
)

// Snapshot agrega um tick de 1s de tráfego e uma amostra do host.
type Snapshot struct {
	At            time.Time `json:"timestamp"`
	Requests      int       `json:"requests"`
	Accepted      int       `json:"accepted"`
	Rejected      int       `json:"rejected"`
	Queued        int       `json:"queued"`
	InstanceCount int       `json:"instanceCount"`
	CPU           float64   `json:"cpu"`
	Memory        float64   `json:"memory"`
	Backends      int       `json:"backends"`
}

type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

type Alert struct {
	Type      AlertLevel `json:"type"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

type Action string

const (
	ActionThrottle  Action = "THROTTLE"
	ActionScaleUp   Action = "SCALE_UP"
	ActionScaleDown Action = "SCALE_DOWN"
	ActionMaintain  Action = "MAINTAIN"
)

// Advice é a recomendação do controlador adaptativo.
type Advice struct {
	Action              Action `json:"action"`
	RecommendedMaxUsers int    `json:"recommendedMaxUsers"`
	CPUOverloaded       bool   `json:"cpuOverloaded"`
}

// SystemSample é uma leitura do host: load average de 1 minuto,
// fração de memória usada (0..1) e número de núcleos.
type SystemSample struct {
	Load1  float64
	Memory float64
	Cores  int
}

type SystemSampler interface {
	Sample(ctx context.Context) (SystemSample, error)
}

// SystemView é o corpo de GET /system/metrics.
type SystemView struct {
	System       SystemSection   `json:"system"`
	Traffic      TrafficSection  `json:"traffic"`
	Resources    ResourceSection `json:"resources"`
	Queues       QueueCounts     `json:"queues"`
	RecentAlerts []Alert         `json:"recentAlerts"`
	Snapshot     *Snapshot       `json:"snapshot,omitempty"`
	Breaker      BreakerState    `json:"breakerState"`
}

type SystemSection struct {
	InstanceCount   int       `json:"instanceCount"`
	CPULoad         string    `json:"cpuLoad"`
	MemoryUsage     string    `json:"memoryUsage"`
	PredictedStatus string    `json:"predictedStatus"`
	Backends        []Backend `json:"backends"`
}

type TrafficSection struct {
	ReqPerSec int `json:"reqPerSec"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Queued    int `json:"queued"`
}

type ResourceSection struct {
	Tokens         float64 `json:"tokens"`
	BucketCapacity float64 `json:"bucketCapacity"`
	RefillRate     float64 `json:"refillRate"`
	ActiveUsers    int     `json:"activeUsers"`
	MaxUsers       int     `json:"maxUsers"`
	ActiveTenants  int     `json:"activeTenants"`
}
