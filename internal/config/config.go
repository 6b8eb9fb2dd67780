package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default configuration values (production)
const (
	DefaultDomain     = "huddle.mentalfish.io"
	DefaultListenAddr = ":8080"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultTURN       = "" // Optional, empty by default
	DefaultTURNUser   = "huddle"
	DefaultTURNPass   = ""

	// SessionCookie carries the externally issued credential; its contents
	// are validated once at upgrade time and never after.
	SessionCookie = "huddle_session"

	// DefaultAvatarRate bounds avatar-position broadcasts per connection,
	// messages per second.
	DefaultAvatarRate = 30
)

// ServerConfig holds the signaling server configuration.
type ServerConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	// JWTSecret verifies the session cookie. Empty disables verification;
	// every connection is then anonymous.
	JWTSecret string

	// ICE servers advertised to clients on /webrtc/ice.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// AvatarRate caps per-connection broadcast messages per second.
	AvatarRate int
}

// ClientConfig holds the client CLI configuration.
type ClientConfig struct {
	// Domain is the signaling server domain
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// DisplayName is the name shown in the local room view
	DisplayName string

	// SessionToken is the externally issued credential, sent as a cookie
	// on the upgrade request
	SessionToken string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	ListenAddr     string
	AllowedOrigins string
	JWTSecret      string
	STUNServer     string
	TURNServer     string
}

// ClientOptions for loading client config with CLI flag overrides
type ClientOptions struct {
	Domain       string
	DisplayName  string
	SessionToken string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
}

// LoadServer reads server configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := firstOf(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListenAddr)

	originsStr := firstOf(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"), "")
	var origins []string
	if originsStr != "" {
		for _, o := range strings.Split(originsStr, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	rate := DefaultAvatarRate
	if v := os.Getenv("AVATAR_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid AVATAR_RATE_LIMIT %q", v)
		}
		rate = n
	}

	return &ServerConfig{
		ListenAddr:     addr,
		AllowedOrigins: origins,
		JWTSecret:      firstOf(opts.JWTSecret, os.Getenv("JWT_SECRET"), ""),
		STUNServer:     firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:     firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:       firstOf("", os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:       firstOf("", os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
		AvatarRate:     rate,
	}, nil
}

// LoadClient reads client configuration with the same flag > env > default
// priority.
func LoadClient(opts ClientOptions) (*ClientConfig, error) {
	domain := firstOf(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)

	scheme := "wss"
	if strings.HasPrefix(domain, "localhost") || strings.HasPrefix(domain, "127.0.0.1") {
		scheme = "ws"
	}

	return &ClientConfig{
		Domain:       domain,
		WebSocketURL: fmt.Sprintf("%s://%s/ws", scheme, domain),
		DisplayName:  firstOf(opts.DisplayName, os.Getenv("DISPLAY_NAME"), ""),
		SessionToken: firstOf(opts.SessionToken, os.Getenv("HUDDLE_SESSION"), ""),
		STUNServer:   firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:     firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:     firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
	}, nil
}

// RoomURL returns the signaling endpoint for a room ID.
func (c *ClientConfig) RoomURL(roomID string) string {
	return fmt.Sprintf("%s/%s", c.WebSocketURL, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *ClientConfig) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *ClientConfig) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *ClientConfig) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ICEServers describes the ICE configuration advertised on /webrtc/ice.
func (c *ServerConfig) ICEServers() []map[string]any {
	servers := []map[string]any{{"urls": []string{c.STUNServer}}}
	if c.TURNServer != "" {
		servers = append(servers, map[string]any{
			"urls":       []string{c.TURNServer},
			"username":   c.TURNUser,
			"credential": c.TURNPass,
		})
	}
	return servers
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
