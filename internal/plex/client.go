package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/logger"
)

const (
	clientIdentifier = "plexshare-manager"
	product          = "Plex Share Manager"
)

// StatusError is returned when Plex answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("plex: %d - %s", e.Status, e.Message)
}

// Client talks to one Plex media server and to plex.tv on behalf of the
// server owner's token. The server identity is resolved on first use and
// dropped again after a failed request so the next call reconnects.
type Client struct {
	BaseURL    string
	PlexTVURL  string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client

	mu     sync.Mutex
	server *serverIdentity
}

type serverIdentity struct {
	MachineIdentifier string
	FriendlyName      string
}

func NewClient(cfg config.PlexConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		PlexTVURL: strings.TrimRight(cfg.PlexTVURL, "/"),
		Token:     cfg.Token,
		Timeout:   timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ Directory = (*Client)(nil)

// --- wire types ---

type serverRoot struct {
	XMLName           xml.Name `xml:"MediaContainer"`
	FriendlyName      string   `xml:"friendlyName,attr"`
	MachineIdentifier string   `xml:"machineIdentifier,attr"`
}

type librarySections struct {
	Directories []struct {
		Key   string `xml:"key,attr"`
		Title string `xml:"title,attr"`
	} `xml:"Directory"`
}

type accountUsers struct {
	Users []accountUser `xml:"User"`
}

type accountUser struct {
	ID       int64  `xml:"id,attr"`
	Title    string `xml:"title,attr"`
	Username string `xml:"username,attr"`
	Email    string `xml:"email,attr"`
	Thumb    string `xml:"thumb,attr"`
	Servers  []struct {
		ID                int64  `xml:"id,attr"`
		MachineIdentifier string `xml:"machineIdentifier,attr"`
	} `xml:"Server"`
}

type requestedInvites struct {
	Invites []struct {
		ID    string `xml:"id,attr"`
		Email string `xml:"email,attr"`
	} `xml:"Invite"`
}

type sharedServer struct {
	SharedServers []struct {
		Sections []struct {
			Key    string `xml:"key,attr"`
			Shared string `xml:"shared,attr"`
		} `xml:"Section"`
	} `xml:"SharedServer"`
}

type ownedServer struct {
	Servers []struct {
		Sections []struct {
			ID    int64  `xml:"id,attr"`
			Key   string `xml:"key,attr"`
			Title string `xml:"title,attr"`
		} `xml:"Section"`
	} `xml:"Server"`
}

type sharedServerRequest struct {
	ServerID        string              `json:"server_id"`
	SharedServer    sharedServerPayload `json:"shared_server"`
	SharingSettings *sharingSettings    `json:"sharing_settings,omitempty"`
}

type sharedServerPayload struct {
	LibrarySectionIDs []int64 `json:"library_section_ids"`
	InvitedEmail      string  `json:"invited_email,omitempty"`
}

type sharingSettings struct {
	AllowSync string `json:"allowSync"`
}

// --- Directory ---

func (c *Client) ListUsers(ctx context.Context) ([]RemoteUser, error) {
	users, err := c.accountUsers(ctx)
	if err != nil {
		return nil, apperr.External("list_users", err)
	}

	result := make([]RemoteUser, 0, len(users))
	for _, u := range users {
		result = append(result, RemoteUser{
			ExternalID: u.ID,
			Username:   u.Title,
			Email:      u.Email,
			AvatarURL:  u.Thumb,
		})
	}
	return result, nil
}

func (c *Client) ListPendingInvites(ctx context.Context) ([]RemoteInvite, error) {
	var invites requestedInvites
	if err := c.getXML(ctx, c.PlexTVURL+"/api/invites/requested", &invites); err != nil {
		return nil, apperr.External("list_pending_invites", err)
	}

	result := make([]RemoteInvite, 0, len(invites.Invites))
	for _, inv := range invites.Invites {
		result = append(result, RemoteInvite{Email: inv.Email})
	}
	return result, nil
}

func (c *Client) ListSections(ctx context.Context) ([]RemoteSection, error) {
	var sections librarySections
	if err := c.getXML(ctx, c.BaseURL+"/library/sections", &sections); err != nil {
		return nil, apperr.External("list_sections", err)
	}

	result := make([]RemoteSection, 0, len(sections.Directories))
	for _, dir := range sections.Directories {
		result = append(result, RemoteSection{Key: dir.Key, Title: dir.Title})
	}
	return result, nil
}

func (c *Client) ListSharedSectionKeys(ctx context.Context, email string) ([]string, error) {
	server, err := c.identity(ctx)
	if err != nil {
		return nil, apperr.External("list_shared_sections", err)
	}
	user, err := c.findUser(ctx, email)
	if err != nil {
		return nil, apperr.External("list_shared_sections", err)
	}

	shareID, ok := shareIDFor(user, server.MachineIdentifier)
	if !ok {
		return []string{}, nil
	}

	var shared sharedServer
	endpoint := fmt.Sprintf("%s/api/servers/%s/shared_servers/%d", c.PlexTVURL, server.MachineIdentifier, shareID)
	if err := c.getXML(ctx, endpoint, &shared); err != nil {
		return nil, apperr.External("list_shared_sections", err)
	}

	keys := []string{}
	for _, s := range shared.SharedServers {
		for _, section := range s.Sections {
			if section.Shared == "1" {
				keys = append(keys, section.Key)
			}
		}
	}
	return keys, nil
}

func (c *Client) GrantAccess(ctx context.Context, email string, sectionTitles []string, allowSync bool) error {
	server, err := c.identity(ctx)
	if err != nil {
		return apperr.External("grant_access", err)
	}
	user, err := c.findUser(ctx, email)
	if err != nil {
		return apperr.External("grant_access", err)
	}
	sectionIDs, err := c.sectionIDs(ctx, server.MachineIdentifier, sectionTitles)
	if err != nil {
		return apperr.External("grant_access", err)
	}

	body := sharedServerRequest{
		ServerID:     server.MachineIdentifier,
		SharedServer: sharedServerPayload{LibrarySectionIDs: sectionIDs},
	}

	if shareID, ok := shareIDFor(user, server.MachineIdentifier); ok {
		endpoint := fmt.Sprintf("%s/api/servers/%s/shared_servers/%d", c.PlexTVURL, server.MachineIdentifier, shareID)
		if err := c.sendJSON(ctx, http.MethodPut, endpoint, body); err != nil {
			return apperr.External("grant_access", err)
		}
	} else {
		body.SharedServer.InvitedEmail = user.Email
		body.SharingSettings = &sharingSettings{AllowSync: syncFlag(allowSync)}
		endpoint := fmt.Sprintf("%s/api/servers/%s/shared_servers", c.PlexTVURL, server.MachineIdentifier)
		if err := c.sendJSON(ctx, http.MethodPost, endpoint, body); err != nil {
			return apperr.External("grant_access", err)
		}
	}

	settingsURL := fmt.Sprintf("%s/api/friends/%d?allowSync=%s", c.PlexTVURL, user.ID, syncFlag(allowSync))
	if err := c.sendJSON(ctx, http.MethodPut, settingsURL, nil); err != nil {
		return apperr.External("grant_access", err)
	}

	logger.Debug("plex_access_granted", map[string]interface{}{
		"email":    email,
		"sections": sectionTitles,
	})
	return nil
}

func (c *Client) InviteUser(ctx context.Context, email string, sectionTitles []string, allowSync bool) error {
	server, err := c.identity(ctx)
	if err != nil {
		return apperr.External("invite_user", err)
	}
	sectionIDs, err := c.sectionIDs(ctx, server.MachineIdentifier, sectionTitles)
	if err != nil {
		return apperr.External("invite_user", err)
	}

	body := sharedServerRequest{
		ServerID: server.MachineIdentifier,
		SharedServer: sharedServerPayload{
			LibrarySectionIDs: sectionIDs,
			InvitedEmail:      email,
		},
		SharingSettings: &sharingSettings{AllowSync: syncFlag(allowSync)},
	}
	endpoint := fmt.Sprintf("%s/api/servers/%s/shared_servers", c.PlexTVURL, server.MachineIdentifier)
	if err := c.sendJSON(ctx, http.MethodPost, endpoint, body); err != nil {
		return apperr.External("invite_user", err)
	}
	return nil
}

// CancelInvite withdraws a pending invite, or removes the friendship when
// the invite was already accepted.
func (c *Client) CancelInvite(ctx context.Context, email string) error {
	var invites requestedInvites
	if err := c.getXML(ctx, c.PlexTVURL+"/api/invites/requested", &invites); err != nil {
		return apperr.External("cancel_invite", err)
	}
	for _, inv := range invites.Invites {
		if strings.EqualFold(inv.Email, email) {
			endpoint := fmt.Sprintf("%s/api/invites/requested/%s?friend=0&server=1&home=0", c.PlexTVURL, url.PathEscape(inv.ID))
			if err := c.sendJSON(ctx, http.MethodDelete, endpoint, nil); err != nil {
				return apperr.External("cancel_invite", err)
			}
			return nil
		}
	}

	user, err := c.findUser(ctx, email)
	if err != nil {
		return apperr.External("cancel_invite", err)
	}
	endpoint := fmt.Sprintf("%s/api/friends/%d", c.PlexTVURL, user.ID)
	if err := c.sendJSON(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return apperr.External("cancel_invite", err)
	}
	return nil
}

// --- helpers ---

func (c *Client) identity(ctx context.Context) (serverIdentity, error) {
	c.mu.Lock()
	if c.server != nil {
		server := *c.server
		c.mu.Unlock()
		return server, nil
	}
	c.mu.Unlock()

	var root serverRoot
	if err := c.getXML(ctx, c.BaseURL+"/", &root); err != nil {
		logger.Error("plex_connect_failed", err, map[string]interface{}{
			"base_url": c.BaseURL,
		})
		return serverIdentity{}, fmt.Errorf("connecting to plex server: %w", err)
	}
	if root.MachineIdentifier == "" {
		return serverIdentity{}, errors.New("connecting to plex server: missing machine identifier")
	}

	server := serverIdentity{MachineIdentifier: root.MachineIdentifier, FriendlyName: root.FriendlyName}
	c.mu.Lock()
	c.server = &server
	c.mu.Unlock()

	logger.Info("plex_connected", map[string]interface{}{
		"server":  server.FriendlyName,
		"machine": server.MachineIdentifier,
	})
	return server, nil
}

// Reset drops the cached server identity.
func (c *Client) Reset() {
	c.mu.Lock()
	c.server = nil
	c.mu.Unlock()
}

func (c *Client) accountUsers(ctx context.Context) ([]accountUser, error) {
	var users accountUsers
	if err := c.getXML(ctx, c.PlexTVURL+"/api/users", &users); err != nil {
		return nil, err
	}
	return users.Users, nil
}

func (c *Client) findUser(ctx context.Context, email string) (accountUser, error) {
	users, err := c.accountUsers(ctx)
	if err != nil {
		return accountUser{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, email) {
			return u, nil
		}
	}
	return accountUser{}, fmt.Errorf("no plex friend with email %s", email)
}

func (c *Client) sectionIDs(ctx context.Context, machineID string, titles []string) ([]int64, error) {
	var owned ownedServer
	if err := c.getXML(ctx, fmt.Sprintf("%s/api/servers/%s", c.PlexTVURL, machineID), &owned); err != nil {
		return nil, err
	}

	byTitle := map[string]int64{}
	for _, server := range owned.Servers {
		for _, section := range server.Sections {
			byTitle[strings.ToLower(section.Title)] = section.ID
		}
	}

	ids := make([]int64, 0, len(titles))
	for _, title := range titles {
		id, ok := byTitle[strings.ToLower(title)]
		if !ok {
			return nil, fmt.Errorf("unknown library section %q", title)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func shareIDFor(user accountUser, machineID string) (int64, bool) {
	for _, server := range user.Servers {
		if server.MachineIdentifier == machineID {
			return server.ID, true
		}
	}
	return 0, false
}

func syncFlag(allowSync bool) string {
	if allowSync {
		return "1"
	}
	return "0"
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Token", c.Token)
	req.Header.Set("X-Plex-Client-Identifier", clientIdentifier)
	req.Header.Set("X-Plex-Product", product)
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Reset()
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Reset()
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 500 {
			c.Reset()
		}
		return nil, &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (c *Client) getXML(ctx context.Context, endpoint string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml")

	data, err := c.do(req)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint string, body interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	_, err = c.do(req)
	return err
}
