// Package target er klienten mot target-APIet (Gitea). Alle svar
// utenfor 2xx klassifiseres inn i remote-taksonomien, slik at
// speilmotoren kan forgrene på feiltype.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/jonmartinstorm/repospeiler/internal/remote"
)

// Injecter en klient (for testbarhet)
var HttpClient = http.DefaultClient

type Client struct {
	BaseURL string
	Token   string
}

func NewClient(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token}
}

// Org er en organisasjon på target.
type Org struct {
	UserName    string `json:"username"`
	Description string `json:"description"`
}

// Repo er et repo på target. Mirror-flagget avgjør om et eksisterende
// repo kan kortsluttes til transferred.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Mirror   bool   `json:"mirror"`
	Archived bool   `json:"archived"`
	CloneURL string `json:"clone_url"`
	Empty    bool   `json:"empty"`
}

// MigrateOptions er parametrene til migrate-kallet. For private
// kilder bakes credentials inn i CloneAddr av kalleren.
type MigrateOptions struct {
	CloneAddr      string `json:"clone_addr"`
	RepoName       string `json:"repo_name"`
	RepoOwner      string `json:"repo_owner"`
	Mirror         bool   `json:"mirror"`
	MirrorInterval string `json:"mirror_interval,omitempty"`
	Private        bool   `json:"private"`
	Wiki           bool   `json:"wiki"`
	LFS            bool   `json:"lfs"`
	Description    string `json:"description,omitempty"`
}

func (c *Client) GetOrg(ctx context.Context, name string) (*Org, error) {
	var org Org
	err := c.do(ctx, http.MethodGet, "/api/v1/orgs/"+url.PathEscape(name), "organisasjonen "+name, nil, &org)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (c *Client) CreateOrg(ctx context.Context, name string) (*Org, error) {
	body := map[string]string{"username": name}
	var org Org
	err := c.do(ctx, http.MethodPost, "/api/v1/orgs", "organisasjonen "+name, body, &org)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repo, error) {
	var repo Repo
	err := c.do(ctx, http.MethodGet, repoPath(owner, name), "repoet "+owner+"/"+name, nil, &repo)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// MigrateRepo oppretter speilet på target via migrate-endepunktet.
func (c *Client) MigrateRepo(ctx context.Context, opts MigrateOptions) (*Repo, error) {
	var repo Repo
	err := c.do(ctx, http.MethodPost, "/api/v1/repos/migrate", "repoet "+opts.RepoOwner+"/"+opts.RepoName, opts, &repo)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// SyncMirror ber target trekke nytt innhold fra kilden.
func (c *Client) SyncMirror(ctx context.Context, owner, name string) error {
	return c.do(ctx, http.MethodPost, repoPath(owner, name)+"/mirror-sync", "repoet "+owner+"/"+name, nil, nil)
}

// ArchiveRepo markerer repoet arkivert på target, uten sletting.
func (c *Client) ArchiveRepo(ctx context.Context, owner, name string) error {
	body := map[string]bool{"archived": true}
	return c.do(ctx, http.MethodPatch, repoPath(owner, name), "repoet "+owner+"/"+name, body, nil)
}

func (c *Client) DeleteRepo(ctx context.Context, owner, name string) error {
	return c.do(ctx, http.MethodDelete, repoPath(owner, name), "repoet "+owner+"/"+name, nil, nil)
}

func (c *Client) CreateLabel(ctx context.Context, owner, name, label, color, description string) error {
	body := map[string]string{"name": label, "color": normalizeColor(color), "description": description}
	return c.do(ctx, http.MethodPost, repoPath(owner, name)+"/labels", "label "+label, body, nil)
}

func (c *Client) CreateMilestone(ctx context.Context, owner, name, title, description, state string, dueOn *time.Time) error {
	body := map[string]any{"title": title, "description": description, "state": state}
	if dueOn != nil {
		body["due_on"] = dueOn.Format(time.RFC3339)
	}
	return c.do(ctx, http.MethodPost, repoPath(owner, name)+"/milestones", "milepælen "+title, body, nil)
}

// CreateIssue oppretter en issue og returnerer dens index på target.
func (c *Client) CreateIssue(ctx context.Context, owner, name, title, bodyText string, closed bool) (int64, error) {
	body := map[string]any{"title": title, "body": bodyText, "closed": closed}
	var out struct {
		Number int64 `json:"number"`
	}
	if err := c.do(ctx, http.MethodPost, repoPath(owner, name)+"/issues", "issue "+title, body, &out); err != nil {
		return 0, err
	}
	return out.Number, nil
}

func (c *Client) CreateComment(ctx context.Context, owner, name string, issueIndex int64, bodyText string) error {
	body := map[string]string{"body": bodyText}
	path := fmt.Sprintf("%s/issues/%d/comments", repoPath(owner, name), issueIndex)
	return c.do(ctx, http.MethodPost, path, fmt.Sprintf("kommentar på issue %d", issueIndex), body, nil)
}

// CreateRelease oppretter en release og returnerer id for asset-
// opplasting.
func (c *Client) CreateRelease(ctx context.Context, owner, name, tag, title, bodyText string, draft, prerelease bool) (int64, error) {
	body := map[string]any{
		"tag_name":   tag,
		"name":       title,
		"body":       bodyText,
		"draft":      draft,
		"prerelease": prerelease,
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, repoPath(owner, name)+"/releases", "release "+tag, body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UploadReleaseAsset laster opp rå asset-bytes til en release.
func (c *Client) UploadReleaseAsset(ctx context.Context, owner, name string, releaseID int64, fileName string, data io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("attachment", fileName)
	if err != nil {
		return fmt.Errorf("kunne ikke bygge multipart for %s: %w", fileName, err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("kunne ikke lese asset %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	path := fmt.Sprintf("%s/releases/%d/assets?name=%s", repoPath(owner, name), releaseID, url.QueryEscape(fileName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := HttpClient.Do(req)
	if err != nil {
		return &remote.TransientError{Op: "target-API", Err: err}
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return remote.ClassifyStatus("target-API", "asset "+fileName, resp.StatusCode, string(bodyBytes))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, resource string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := HttpClient.Do(req)
	if err != nil {
		return &remote.TransientError{Op: "target-API", Err: err}
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return remote.ClassifyStatus("target-API", resource, resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func repoPath(owner, name string) string {
	return "/api/v1/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// Target krever heksfarge med #-prefiks; kilden leverer uten.
func normalizeColor(color string) string {
	if color == "" {
		return "#cccccc"
	}
	if color[0] != '#' {
		return "#" + color
	}
	return color
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("Klarte ikke å lukke response body", "error", err)
	}
}
