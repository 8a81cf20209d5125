package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"overload-gateway/gateway/domain"

	"go.uber.org/zap"
)

// ExecProvisioner sobe workers como processos filhos.
// Cada ocorrência de "{port}" em Args é trocada pela porta alocada.
type ExecProvisioner struct {
	Command string
	Args    []string
	Dir     string
	Log     *zap.Logger
}

var _ domain.Provisioner = (*ExecProvisioner)(nil)

func (p *ExecProvisioner) Provision(_ context.Context, port int, onExit func(error)) error {
	if strings.TrimSpace(p.Command) == "" {
		return domain.ErrProvisioningDisabled
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	ps := strconv.Itoa(port)
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = strings.ReplaceAll(a, "{port}", ps)
	}

	// o processo vive além da requisição que o criou; não usar o ctx dela
	cmd := exec.Command(p.Command, args...)
	cmd.Dir = p.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "PORT="+ps)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker on port %d: %w", port, err)
	}
	log.Info("worker started", zap.Int("port", port), zap.Int("pid", cmd.Process.Pid))

	go func() {
		err := cmd.Wait()
		log.Info("worker exited", zap.Int("port", port), zap.Error(err))
		if onExit != nil {
			onExit(err)
		}
	}()
	return nil
}
