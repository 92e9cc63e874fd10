// Package rtm is a client for the Remember The Milk REST API: the
// signed-request protocol, the frob-based authentication handshake, and
// the list/task operations this application uses.
//
// Every request carries the application's api_key, the method name and
// an api_sig computed by Sign over the full parameter set. Mutating
// calls additionally require a timeline; their responses carry a
// transaction id that can reverse the change server-side.
package rtm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultRestURL is the production REST endpoint.
	DefaultRestURL = "https://api.rememberthemilk.com/services/rest/"
	// DefaultAuthURL is the production user authorization page.
	DefaultAuthURL = "https://www.rememberthemilk.com/services/auth/"
)

// Permission levels the service understands, weakest first.
const (
	PermRead   = "read"
	PermWrite  = "write"
	PermDelete = "delete"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	APIKey    string
	APISecret string

	// RestURL and AuthURL override the production endpoints, for tests.
	RestURL string
	AuthURL string

	// Timeout bounds each network request. Zero means 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries after a transport failure.
	// Zero means 3.
	MaxRetries int

	// RetryDelay is the initial backoff delay. Zero means 500ms.
	RetryDelay time.Duration
}

// Client performs signed calls against the service. The credential is
// held in a single slot guarded by a generation counter: calls capture
// the generation they started with, and a swap (re-authentication)
// invalidates their outcome rather than mixing credentials.
type Client struct {
	cfg       Config
	restURL   string
	authURL   string
	transport *retryTransport

	mu       sync.Mutex
	cred     *Credential
	gen      uint64
	timeline string
}

// New creates a Client. The API key and secret identify the application
// and are required; a user credential may be attached later with
// SetCredential.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("rtm: API key and secret are required")
	}
	restURL := cfg.RestURL
	if restURL == "" {
		restURL = DefaultRestURL
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	return &Client{
		cfg:     cfg,
		restURL: restURL,
		authURL: authURL,
		transport: newRetryTransport(transportConfig{
			MaxRetries:   cfg.MaxRetries,
			BaseDelay:    cfg.RetryDelay,
			Timeout:      cfg.Timeout,
			EnableJitter: true,
		}),
	}, nil
}

// SetCredential replaces the credential slot and bumps the generation,
// invalidating calls still in flight under the old credential. A nil
// credential logs the client out. The cached timeline belongs to the
// old session and is dropped.
func (c *Client) SetCredential(cred *Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.gen++
	c.timeline = ""
}

// Credential returns the current credential, or nil when logged out.
func (c *Client) Credential() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

func (c *Client) credentialGen() (*Credential, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil || c.cred.Token == "" {
		return nil, 0, ErrNotAuthenticated
	}
	return c.cred, c.gen, nil
}

// call performs a signed request for method and decodes the response
// envelope. The boolean result of the generation check turns a stale
// completion into ErrNotAuthenticated instead of data from a dead
// session.
func (c *Client) call(ctx context.Context, method string, params Params, authed bool) (json.RawMessage, error) {
	p := params.clone()
	p["method"] = method
	p["format"] = "json"
	p["api_key"] = c.cfg.APIKey

	var gen uint64
	if authed {
		cred, g, err := c.credentialGen()
		if err != nil {
			return nil, err
		}
		p["auth_token"] = cred.Token
		gen = g
	}

	url := SignedURL(c.restURL, c.cfg.APISecret, p)
	body, err := c.transport.get(ctx, method, url)
	if err != nil {
		return nil, err
	}

	if authed {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return nil, ErrNotAuthenticated
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Op: method, Attempts: 1, Err: fmt.Errorf("malformed response: %w", err)}
	}
	var status rspStatus
	if err := json.Unmarshal(env.Rsp, &status); err != nil {
		return nil, &TransportError{Op: method, Attempts: 1, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if status.Stat != "ok" {
		if status.Err != nil {
			return nil, status.Err.toServiceError()
		}
		return nil, &ServiceError{Msg: "request failed with no error detail"}
	}
	return env.Rsp, nil
}

// timelineParam returns the cached timeline for this session, creating
// one on first use. Timelines scope server-side undo.
func (c *Client) timelineParam(ctx context.Context) (string, error) {
	c.mu.Lock()
	tl := c.timeline
	c.mu.Unlock()
	if tl != "" {
		return tl, nil
	}

	rsp, err := c.call(ctx, "rtm.timelines.create", Params{}, true)
	if err != nil {
		return "", err
	}
	var out timelineRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return "", fmt.Errorf("rtm: decoding timeline: %w", err)
	}

	c.mu.Lock()
	c.timeline = out.Timeline
	c.mu.Unlock()
	return out.Timeline, nil
}

// CheckToken asks the service whether the current credential is still
// valid. Returns false with no error when no credential is attached.
func (c *Client) CheckToken(ctx context.Context) (bool, error) {
	if c.Credential() == nil {
		return false, nil
	}
	_, err := c.call(ctx, "rtm.auth.checkToken", Params{}, true)
	if err != nil {
		if IsAuthExpired(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Lists fetches all task lists, metadata only. Idempotent.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	rsp, err := c.call(ctx, "rtm.lists.getList", Params{}, true)
	if err != nil {
		return nil, err
	}
	var out listsRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return nil, fmt.Errorf("rtm: decoding lists: %w", err)
	}
	lists := make([]List, 0, len(out.Lists.List))
	for _, l := range out.Lists.List {
		lists = append(lists, List{ID: l.ID, Name: l.Name})
	}
	return lists, nil
}

// Tasks fetches the tasks of one list, flattened. filter is a service
// search expression and may be empty. Idempotent.
func (c *Client) Tasks(ctx context.Context, listID, filter string) ([]Task, error) {
	p := Params{"list_id": listID}
	if filter != "" {
		p["filter"] = filter
	}
	rsp, err := c.call(ctx, "rtm.tasks.getList", p, true)
	if err != nil {
		return nil, err
	}
	var out tasksRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return nil, fmt.Errorf("rtm: decoding tasks: %w", err)
	}
	return flattenTasks(out.Tasks.List), nil
}

// AddTask creates a task from free text via the service's smart parser,
// which may infer due dates and priority ("Buy milk tomorrow"). The
// returned task is the server's authoritative record; its ids must be
// adopted verbatim by the caller.
func (c *Client) AddTask(ctx context.Context, listID, text string) (*Task, *Transaction, error) {
	tl, err := c.timelineParam(ctx)
	if err != nil {
		return nil, nil, err
	}
	p := Params{
		"timeline": tl,
		"name":     text,
		"parse":    "1",
	}
	if listID != "" {
		p["list_id"] = listID
	}
	rsp, err := c.call(ctx, "rtm.tasks.add", p, true)
	if err != nil {
		return nil, nil, err
	}
	var out taskMutationRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return nil, nil, fmt.Errorf("rtm: decoding added task: %w", err)
	}
	tasks := flattenTasks([]wireTaskList{out.List})
	if len(tasks) == 0 {
		return nil, nil, &ServiceError{Msg: "add succeeded but no task returned"}
	}
	tx := &Transaction{ID: out.Transaction.ID, Undoable: bool(out.Transaction.Undoable)}
	return &tasks[0], tx, nil
}

// CompleteTask marks a task complete. The returned transaction reverses
// the change server-side via UndoTransaction.
func (c *Client) CompleteTask(ctx context.Context, ref TaskRef) (*Transaction, error) {
	return c.taskMutation(ctx, "rtm.tasks.complete", ref)
}

// UncompleteTask marks a task incomplete again.
func (c *Client) UncompleteTask(ctx context.Context, ref TaskRef) (*Transaction, error) {
	return c.taskMutation(ctx, "rtm.tasks.uncomplete", ref)
}

func (c *Client) taskMutation(ctx context.Context, method string, ref TaskRef) (*Transaction, error) {
	tl, err := c.timelineParam(ctx)
	if err != nil {
		return nil, err
	}
	p := Params{
		"timeline":      tl,
		"list_id":       ref.ListID,
		"taskseries_id": ref.SeriesID,
		"task_id":       ref.TaskID,
	}
	rsp, err := c.call(ctx, method, p, true)
	if err != nil {
		return nil, err
	}
	var out transactionRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return nil, fmt.Errorf("rtm: decoding transaction: %w", err)
	}
	return &Transaction{ID: out.Transaction.ID, Undoable: bool(out.Transaction.Undoable)}, nil
}

// UndoTransaction reverses a prior mutation using the service's own
// undo mechanism. Preferred over re-issuing the opposite mutation,
// which could race a concurrent edit made elsewhere.
func (c *Client) UndoTransaction(ctx context.Context, transactionID string) error {
	tl, err := c.timelineParam(ctx)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "rtm.transactions.undo", Params{
		"timeline":       tl,
		"transaction_id": transactionID,
	}, true)
	return err
}
