package verdict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"

	"github.com/chatwarden/warden/util"
)

// RemoteSource calls an external classifier service over HTTP. Requests
// are rate limited client-side; the underlying client retries connection
// errors and 5xx responses with backoff.
type RemoteSource struct {
	Client   http.Client
	Host     string
	Password string
	Limiter  *rate.Limiter
}

// NewRemoteSource configures a client for the classifier at host (eg
// "https://classifier.example.com"). ratelimit is the sustained
// requests-per-second budget, with burst capacity of twice that.
func NewRemoteSource(host, password string, ratelimit int) *RemoteSource {
	if ratelimit <= 0 {
		ratelimit = 10
	}
	return &RemoteSource{
		Client:   *util.RobustHTTPClient(),
		Host:     host,
		Password: password,
		Limiter:  rate.NewLimiter(rate.Limit(ratelimit), 2*ratelimit),
	}
}

func (rs *RemoteSource) Classify(ctx context.Context, msg *Message) (*Verdict, error) {

	if err := rs.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	slog.Debug("sending message to classifier", "community", msg.CommunityID, "member", msg.MemberID, "size", len(msg.Text))

	reqBytes, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", rs.Host+"/classify", bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, err
	}

	if rs.Password != "" {
		req.SetBasicAuth("admin", rs.Password)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		classifierAPIDuration.Observe(duration.Seconds())
	}()

	req = req.WithContext(ctx)
	res, err := rs.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("classifier request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier resp body: %w", err)
	}

	var v Verdict
	if err := json.Unmarshal(respBytes, &v); err != nil {
		return nil, fmt.Errorf("failed to parse classifier resp JSON: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("classifier returned invalid verdict: %w", err)
	}
	return &v, nil
}
