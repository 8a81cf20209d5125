package infra

import (
	"context"
	"fmt"
	"runtime"

	"overload-gateway/gateway/domain"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSampler lê load average de 1 minuto e uso de memória do host via gopsutil.
type HostSampler struct{}

var _ domain.SystemSampler = HostSampler{}

func (HostSampler) Sample(ctx context.Context) (domain.SystemSample, error) {
	s := domain.SystemSample{Cores: runtime.NumCPU()}

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("load average: %w", err)
	}
	s.Load1 = avg.Load1

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("virtual memory: %w", err)
	}
	s.Memory = vm.UsedPercent / 100
	return s, nil
}
