package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

// Executor removes attackers over raw REST, bypassing the gateway
// session's shared rate limiter. Bans issued here must land while the
// attacker is still mid-spree, so every request goes through the warm
// connection pool with a hard timeout.
type Executor struct {
	pool    *Pool
	limits  *RateLimitMonitor
	token   string
	baseURL string
}

func NewExecutor(pool *Pool, limits *RateLimitMonitor, token, baseURL string) *Executor {
	return &Executor{pool: pool, limits: limits, token: token, baseURL: baseURL}
}

// Ban permanently removes a user from the guild. Satisfies the response
// engine's blocker contract.
func (x *Executor) Ban(ctx context.Context, guildID, userID, reason string) error {
	if !x.limits.CanExecute("ban", guildID) {
		return fmt.Errorf("ban rate limited for guild %s", guildID)
	}

	body, err := json.Marshal(map[string]interface{}{"delete_message_seconds": 0})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/guilds/%s/bans/%s", x.baseURL, guildID, userID)
	start := time.Now()
	status, err := x.do(ctx, fasthttp.MethodPut, url, reason, body, "ban", guildID)
	if err != nil {
		return fmt.Errorf("ban request: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("ban rejected with status %d", status)
	}

	logging.Info("ban executed: guild=%s user=%s in %dµs status=%d",
		guildID, userID, time.Since(start).Microseconds(), status)
	return nil
}

// Kick removes a user without a ban entry.
func (x *Executor) Kick(ctx context.Context, guildID, userID, reason string) error {
	if !x.limits.CanExecute("kick", guildID) {
		return fmt.Errorf("kick rate limited for guild %s", guildID)
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s", x.baseURL, guildID, userID)
	status, err := x.do(ctx, fasthttp.MethodDelete, url, reason, nil, "kick", guildID)
	if err != nil {
		return fmt.Errorf("kick request: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("kick rejected with status %d", status)
	}
	return nil
}

func (x *Executor) do(ctx context.Context, method, url, reason string, body []byte, route, guildID string) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+x.token)
	req.Header.Set("X-Audit-Log-Reason", reason)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}

	if err := x.pool.Client().DoTimeout(req, resp, timeout); err != nil {
		return 0, err
	}
	x.limits.Observe(resp, route, guildID)
	return resp.StatusCode(), nil
}
