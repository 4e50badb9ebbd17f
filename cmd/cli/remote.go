package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitetime/internal/convert"
	"github.com/and161185/sitetime/internal/kv"
	grpcserver "github.com/and161185/sitetime/internal/server/grpc"
)

// remoteTokenKey holds the bearer token for the reporting server in the local store.
const remoteTokenKey = "remote.token"

type remoteOptions struct {
	addr      string
	caPath    string
	insecure  bool // skip certificate verification
	plaintext bool // no TLS at all, for dev servers
}

// ---- token store ----

type tokenRecord struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func saveToken(ctx context.Context, s kv.Store, tok string, exp time.Time) error {
	b, err := json.Marshal(tokenRecord{AccessToken: tok, ExpiresAt: exp})
	if err != nil {
		return err
	}
	return s.Set(ctx, remoteTokenKey, string(b))
}

func loadToken(ctx context.Context, s kv.Store, now time.Time) (string, error) {
	raw, ok, err := s.Get(ctx, remoteTokenKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("no valid token (remote login required)")
	}
	var tr tokenRecord
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" || now.After(tr.ExpiresAt) {
		return "", errors.New("no valid token (remote login required)")
	}
	return tr.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dialRemote(_ context.Context, o remoteOptions, bearer string) (grpc.ClientConnInterface, func(), error) {
	creds := insecure.NewCredentials()
	if !o.plaintext {
		var err error
		if creds, err = loadTLS(o.caPath, o.insecure); err != nil {
			return nil, nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	cc, err := grpc.NewClient(o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, func() { _ = cc.Close() }, nil
}

// ---- commands ----

func (c *cli) remoteClient(ctx context.Context, o remoteOptions, bearer string) (*grpcserver.Client, error) {
	cc, closeFn, err := c.deps.dial(ctx, o, bearer)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeFn)
	return grpcserver.NewClient(cc), nil
}

func (c *cli) remoteCmd() *cobra.Command {
	var o remoteOptions
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a sitetime server instead of the database",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&o.addr, "server", "localhost:8443", "server address")
	pf.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&o.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")

	var username, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the server and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := c.localStore(ctx)
			if err != nil {
				return err
			}
			pw, err := readSecret(c.in, password, "password")
			if err != nil {
				return err
			}
			cl, err := c.remoteClient(ctx, o, "")
			if err != nil {
				return err
			}
			req, err := structpb.NewStruct(map[string]any{"username": username, "password": pw})
			if err != nil {
				return err
			}
			out, err := cl.Call(ctx, grpcserver.MethodLogin, req)
			if err != nil {
				return err
			}
			exp, err := convert.ParseTime(convert.Str(out, "expiresAt"))
			if err != nil {
				return err
			}
			if err := saveToken(ctx, store, convert.Str(out, "accessToken"), exp); err != nil {
				return err
			}
			return c.say("signed in to %s as %s", o.addr, username)
		},
	}
	login.Flags().StringVarP(&username, "username", "u", "", "username")
	login.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	_ = login.MarkFlagRequired("username")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved server token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.localStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Remove(cmd.Context(), remoteTokenKey); err != nil {
				return err
			}
			return c.say("signed out")
		},
	}

	call := &cobra.Command{
		Use:   "call METHOD [JSON|-]",
		Short: "Invoke an API method with a JSON body",
		Long: `Invoke a sitetime.v1.Reports method. The body is a JSON object given inline,
or read from stdin with "-". Example:

  sitetime remote call UserStats '{"top": 3, "refresh": true}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.localStore(ctx)
			if err != nil {
				return err
			}
			tok, err := loadToken(ctx, store, time.Now())
			if err != nil {
				return err
			}
			req := &structpb.Struct{}
			if len(args) == 2 {
				body := []byte(args[1])
				if args[1] == "-" {
					if body, err = readAll(c.in, "-"); err != nil {
						return err
					}
				}
				if err := protojson.Unmarshal(body, req); err != nil {
					return err
				}
			}
			cl, err := c.remoteClient(ctx, o, tok)
			if err != nil {
				return err
			}
			return c.emit(cl.Call(ctx, args[0], req))
		},
	}

	cmd.AddCommand(login, logout, call)
	return cmd
}
