package fetch

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	appLog "calext/internal/log"
)

// Doer issues a single HTTP request. *http.Client satisfies it; tests
// substitute a scripted implementation.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type AuthMethod string

const (
	AuthBasic  AuthMethod = "basic"
	AuthBearer AuthMethod = "bearer"
)

// Auth holds the credentials applied to every poll request. For bearer
// auth only Pass (the token) is used.
type Auth struct {
	Method AuthMethod
	User   string
	Pass   string
}

// Defaults for options left zero.
const (
	DefaultPollInterval        = 5 * time.Minute
	DefaultAuthFailureCooldown = 2 * time.Hour
	DefaultRateLimitCooldown   = 15 * time.Minute
	DefaultClientErrorCooldown = time.Hour
	DefaultUserAgent           = "calext/1.0"

	httpTimeout = 30 * time.Second
)

// Options configures a single feed's poll loop.
type Options struct {
	URL          string
	PollInterval time.Duration
	Auth         *Auth
	UserAgent    string

	AuthFailureCooldown time.Duration
	RateLimitCooldown   time.Duration
	ClientErrorCooldown time.Duration

	// OnSuccess receives the response body of every successful poll.
	OnSuccess func(body string)
	// OnError receives classified HTTP errors and transport errors.
	OnError func(err error)
}

// HTTPError is a non-2xx response from the feed server. It never
// escapes Start; it reaches the caller through OnError after the
// suspension policy has been applied.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return "fetch failed: " + status
}

// Fetcher owns the recurring poll loop for one calendar source. A
// single Fetcher must not be shared across sources; its state is only
// touched by its own timer goroutine and Start/Stop callers.
type Fetcher struct {
	opts   Options
	client Doer
	now    func() time.Time

	mu            sync.Mutex
	active        bool
	timer         *time.Timer
	suspendUntil  time.Time
	suspendReason string
}

// New builds a Fetcher; it does not start polling.
func New(opts Options) *Fetcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.AuthFailureCooldown <= 0 {
		opts.AuthFailureCooldown = DefaultAuthFailureCooldown
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if opts.ClientErrorCooldown <= 0 {
		opts.ClientErrorCooldown = DefaultClientErrorCooldown
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Fetcher{
		opts:   opts,
		client: &http.Client{Timeout: httpTimeout},
		now:    time.Now,
	}
}

// Start begins the poll loop with an immediate first fetch. Starting a
// running fetcher is a no-op.
func (f *Fetcher) Start() {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return
	}
	f.active = true
	f.mu.Unlock()
	go f.poll()
}

// Stop cancels the pending timer; no further polls occur until Start is
// called again. An in-flight request is not aborted, but its completion
// becomes a no-op. Stop is idempotent.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Suspension returns the current suspension deadline and reason; both
// are zero when the fetcher is not suspended.
func (f *Fetcher) Suspension() (time.Time, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspendUntil, f.suspendReason
}

func (f *Fetcher) schedule(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(d, f.poll)
}

// poll runs one fetch cycle and arms the next timer. While suspended it
// skips the network call entirely and keeps the normal cadence; the
// first poll at or after expiry clears suspendUntil and suspendReason
// together and proceeds.
func (f *Fetcher) poll() {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}
	if !f.suspendUntil.IsZero() && f.now().Before(f.suspendUntil) {
		until, reason := f.suspendUntil, f.suspendReason
		f.mu.Unlock()
		appLog.Debug("poll skipped while suspended",
			"url", redactURL(f.opts.URL), "reason", reason, "until", until.Format(time.RFC3339))
		f.schedule(f.opts.PollInterval)
		return
	}
	f.suspendUntil = time.Time{}
	f.suspendReason = ""
	f.mu.Unlock()

	body, delay, err := f.fetchOnce()

	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if !active {
		// Stopped while the request was in flight.
		return
	}

	if err != nil {
		if f.opts.OnError != nil {
			f.opts.OnError(err)
		}
	} else if f.opts.OnSuccess != nil {
		f.opts.OnSuccess(body)
	}
	f.schedule(delay)
}

// fetchOnce performs a single HTTP GET and returns the body, the delay
// until the next poll, and the error to report, if any.
func (f *Fetcher) fetchOnce() (string, time.Duration, error) {
	req, err := http.NewRequest(http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return "", f.opts.PollInterval, fmt.Errorf("build request for %s: %w", redactURL(f.opts.URL), err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if a := f.opts.Auth; a != nil {
		switch a.Method {
		case AuthBasic:
			cred := base64.StdEncoding.EncodeToString([]byte(a.User + ":" + a.Pass))
			req.Header.Set("Authorization", "Basic "+cred)
		case AuthBearer:
			req.Header.Set("Authorization", "Bearer "+a.Pass)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport failure: report it and keep the normal cadence;
		// only HTTP-status-classified failures suspend.
		return "", f.opts.PollInterval, fmt.Errorf("fetch %s: %w", redactURL(f.opts.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", f.opts.PollInterval, fmt.Errorf("read body from %s: %w", redactURL(f.opts.URL), readErr)
		}
		return string(data), f.opts.PollInterval, nil
	}

	delay := f.handleHTTPError(resp.StatusCode, resp.Header)
	return "", delay, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
}

// handleHTTPError classifies a non-2xx status, applies the suspension
// policy, and returns the delay until the next poll. The configured
// poll interval is a floor, so a short cooldown never causes rapid
// retries.
func (f *Fetcher) handleHTTPError(status int, header http.Header) time.Duration {
	var cooldown time.Duration
	var reason string

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		cooldown = f.opts.AuthFailureCooldown
		reason = fmt.Sprintf("auth error (%d)", status)
	case http.StatusTooManyRequests:
		cooldown = retryAfter(header.Get("Retry-After"), f.opts.RateLimitCooldown, f.now())
		reason = "rate limit"
	case http.StatusNotFound, http.StatusRequestTimeout:
		cooldown = f.opts.ClientErrorCooldown
		reason = fmt.Sprintf("client error (%d)", status)
	default:
		// 5xx and anything unclassified: no suspension, normal cadence.
		return f.opts.PollInterval
	}

	f.mu.Lock()
	f.suspendUntil = f.now().Add(cooldown)
	f.suspendReason = reason
	f.mu.Unlock()

	appLog.Warn("feed suspended",
		"url", redactURL(f.opts.URL), "status", status, "reason", reason, "cooldown", cooldown)

	if cooldown > f.opts.PollInterval {
		return cooldown
	}
	return f.opts.PollInterval
}

// retryAfter interprets a Retry-After header value. A nonnegative
// integer counts seconds; an HTTP date yields the time remaining,
// floored at zero when the date is in the past; anything unparseable
// falls back to the status's default cooldown.
func retryAfter(v string, fallback time.Duration, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

// redactURL keeps scheme and host for logging; feed URLs often embed
// tokens in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
