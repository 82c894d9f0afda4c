package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"ticketless/internal/config"
	"ticketless/internal/deps"
)

const serviceCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minFree
// bytes available. A zero floor always passes.
func CheckFreeSpace(name, path string, minFree uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%d MB available", free/(1<<20))
	if minFree > 0 && free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %d MB", detail, minFree/(1<<20))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckRedis pings the notification Redis server.
func CheckRedis(ctx context.Context, addr string) Result {
	const name = "Redis notifications"

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
		}
		opts = parsed
	}
	opts.MaxRetries = -1
	client := redis.NewClient(opts)
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckAMQP opens and closes a broker connection.
func CheckAMQP(url string) Result {
	const name = "RabbitMQ wakeups"

	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(serviceCheckTimeout),
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckPostgres connects to the job table database and pings it.
func CheckPostgres(ctx context.Context, dsn string) Result {
	const name = "PostgreSQL queue"

	if strings.TrimSpace(dsn) == "" {
		return Result{Name: name, Detail: "missing dsn"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()
	conn, err := pgx.Connect(checkCtx, dsn)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	defer conn.Close(context.Background())
	if err := conn.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeDialError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckSystemDeps evaluates the toolchain binaries named in cfg. Both the
// daemon and the CLI status command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.ToolchainRequirements(cfg.Toolchain.FFmpegBinary, cfg.Toolchain.FFprobeBinary))
}

// summarizeDialError produces a human-readable summary for connection failures.
func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}
	return err.Error()
}
