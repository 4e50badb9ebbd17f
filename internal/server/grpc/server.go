// Package grpcserver exposes the sitetime reporting API over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitetime/internal/aggregate"
	"github.com/and161185/sitetime/internal/convert"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/service"
	"github.com/and161185/sitetime/internal/token"
)

// Data is the part of the data service the API serves.
type Data interface {
	GetAllUsersAggregate(ctx context.Context, opts service.ReadOptions) (map[string]model.UserAggregate, error)
	GetTaskCatalogWithStats(ctx context.Context, opts service.ReadOptions) ([]model.TaskUsage, error)
	GetDeduplicatedJobAddresses(ctx context.Context, opts service.ReadOptions) ([]string, error)
	GetUserStats(ctx context.Context, userID uuid.UUID, opts service.ReadOptions) (model.UserStats, error)
	GetUserEntryGroups(ctx context.Context, userID uuid.UUID) (model.Grouping, error)

	GetTimeEntry(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, e model.TimeEntry) (*model.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id uuid.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id uuid.UUID) error

	GetJobAddress(ctx context.Context, id uuid.UUID) (*model.JobAddress, error)
	CreateJobAddress(ctx context.Context, userID uuid.UUID, label string) (*model.JobAddress, error)
	UpdateJobAddress(ctx context.Context, id uuid.UUID, label string) (*model.JobAddress, error)
	DeleteJobAddress(ctx context.Context, id uuid.UUID) error

	CreateTask(ctx context.Context, name string) (*model.CSITask, error)
	RenameTask(ctx context.Context, id uuid.UUID, name string) (*model.CSITask, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

var _ Data = (*service.DataService)(nil)

// Server wires services into gRPC handlers.
type Server struct {
	auth service.AuthService
	data Data
}

var _ ReportsServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, data Data) *Server {
	return &Server{auth: auth, data: data}
}

// PublicMethods lists the full method names reachable without a token.
func PublicMethods() []string { return []string{FullMethod(MethodLogin)} }

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrNoSession):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrInvalid):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func remoteIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func readOpts(req *structpb.Struct) service.ReadOptions {
	return service.ReadOptions{Refresh: req.GetFields()["refresh"].GetBoolValue()}
}

func respond(m map[string]any) (*structpb.Struct, error) {
	out, err := convert.Struct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

func principal(ctx context.Context) (token.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return token.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}

func requireAdmin(ctx context.Context) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if p.Role != model.RoleAdmin {
		return status.Error(codes.PermissionDenied, "admin only")
	}
	return nil
}

// targetUser resolves the userId field, defaulting to the caller. Only admins may
// act on behalf of other users.
func targetUser(ctx context.Context, req *structpb.Struct) (uuid.UUID, error) {
	p, err := principal(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if !convert.Has(req, "userId") {
		return p.UserID, nil
	}
	id, err := convert.UUID(req, "userId")
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "bad userId")
	}
	if id != p.UserID && p.Role != model.RoleAdmin {
		return uuid.Nil, status.Error(codes.PermissionDenied, "not your data")
	}
	return id, nil
}

func ensureOwner(ctx context.Context, owner uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if owner != p.UserID && p.Role != model.RoleAdmin {
		return status.Error(codes.PermissionDenied, "not your data")
	}
	return nil
}

func idField(req *structpb.Struct) (uuid.UUID, error) {
	id, err := convert.UUID(req, "id")
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "bad id")
	}
	return id, nil
}

// --- Auth ---

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username, password := convert.Str(req, "username"), convert.Str(req, "password")
	if username == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	tok, u, err := s.auth.Login(ctx, username, password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus("login", err)
	}
	return respond(map[string]any{
		"accessToken": tok.AccessToken,
		"expiresAt":   convert.FormatTime(tok.ExpiresAt),
		"user":        convert.UserMap(u),
	})
}

// --- Reads ---

// AllUsers returns the all-users aggregate. Admin only.
func (s *Server) AllUsers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	all, err := s.data.GetAllUsersAggregate(ctx, readOpts(req))
	if err != nil {
		return nil, toStatus("all users", err)
	}
	out, err := convert.AllUsersStruct(all)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// TaskCatalog returns the task catalog with usage statistics.
func (s *Server) TaskCatalog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tasks, err := s.data.GetTaskCatalogWithStats(ctx, readOpts(req))
	if err != nil {
		return nil, toStatus("task catalog", err)
	}
	out, err := convert.TaskUsageStruct(tasks)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// JobAddresses returns the deduplicated address labels across users.
func (s *Server) JobAddresses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	labels, err := s.data.GetDeduplicatedJobAddresses(ctx, readOpts(req))
	if err != nil {
		return nil, toStatus("job addresses", err)
	}
	out, err := convert.LabelsStruct(labels)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// UserStats returns one user's statistics and top divisions.
func (s *Server) UserStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := targetUser(ctx, req)
	if err != nil {
		return nil, err
	}
	st, err := s.data.GetUserStats(ctx, uid, readOpts(req))
	if err != nil {
		return nil, toStatus("user stats", err)
	}
	top := aggregate.TopNByValue(st.DivisionBreakdown, int(convert.Int(req, "top")))
	list := make([]any, 0, len(top))
	for _, kv := range top {
		list = append(list, map[string]any{"division": kv.Key, "seconds": kv.Value})
	}
	return respond(map[string]any{
		"userId":       uid.String(),
		"stats":        convert.UserStatsMap(st),
		"topDivisions": list,
	})
}

// EntryGroups returns one user's entries grouped by year, month and biweek.
func (s *Server) EntryGroups(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := targetUser(ctx, req)
	if err != nil {
		return nil, err
	}
	g, err := s.data.GetUserEntryGroups(ctx, uid)
	if err != nil {
		return nil, toStatus("entry groups", err)
	}
	out, err := convert.GroupingStruct(g)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// --- Entries ---

// CreateEntry stores a time entry for the caller, or for userId when the caller is an admin.
func (s *Server) CreateEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := targetUser(ctx, req)
	if err != nil {
		return nil, err
	}
	e, err := convert.EntryFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad entry: %v", err)
	}
	e.UserID = uid
	out, err := s.data.CreateTimeEntry(ctx, e)
	if err != nil {
		return nil, toStatus("create entry", err)
	}
	return respond(map[string]any{"entry": convert.EntryMap(*out)})
}

// UpdateEntry applies the present fields to an entry the caller owns.
func (s *Server) UpdateEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	p, err := convert.EntryPatchFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad patch: %v", err)
	}
	cur, err := s.data.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, toStatus("update entry", err)
	}
	if err := ensureOwner(ctx, cur.UserID); err != nil {
		return nil, err
	}
	out, err := s.data.UpdateTimeEntry(ctx, id, p)
	if err != nil {
		return nil, toStatus("update entry", err)
	}
	return respond(map[string]any{"entry": convert.EntryMap(*out)})
}

// DeleteEntry removes an entry the caller owns.
func (s *Server) DeleteEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	cur, err := s.data.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, toStatus("delete entry", err)
	}
	if err := ensureOwner(ctx, cur.UserID); err != nil {
		return nil, err
	}
	if err := s.data.DeleteTimeEntry(ctx, id); err != nil {
		return nil, toStatus("delete entry", err)
	}
	return &structpb.Struct{}, nil
}

// --- Job addresses ---

// CreateJobAddress adds an address label for the caller, or for userId when the caller is an admin.
func (s *Server) CreateJobAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := targetUser(ctx, req)
	if err != nil {
		return nil, err
	}
	a, err := s.data.CreateJobAddress(ctx, uid, convert.Str(req, "label"))
	if err != nil {
		return nil, toStatus("create job address", err)
	}
	return respond(map[string]any{"jobAddress": convert.JobAddressMap(*a)})
}

// UpdateJobAddress relabels an address the caller owns.
func (s *Server) UpdateJobAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	cur, err := s.data.GetJobAddress(ctx, id)
	if err != nil {
		return nil, toStatus("update job address", err)
	}
	if err := ensureOwner(ctx, cur.UserID); err != nil {
		return nil, err
	}
	a, err := s.data.UpdateJobAddress(ctx, id, convert.Str(req, "label"))
	if err != nil {
		return nil, toStatus("update job address", err)
	}
	return respond(map[string]any{"jobAddress": convert.JobAddressMap(*a)})
}

// DeleteJobAddress removes an address the caller owns.
func (s *Server) DeleteJobAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	cur, err := s.data.GetJobAddress(ctx, id)
	if err != nil {
		return nil, toStatus("delete job address", err)
	}
	if err := ensureOwner(ctx, cur.UserID); err != nil {
		return nil, err
	}
	if err := s.data.DeleteJobAddress(ctx, id); err != nil {
		return nil, toStatus("delete job address", err)
	}
	return &structpb.Struct{}, nil
}

// --- Task catalog (admin) ---

// CreateTask adds a catalog task.
func (s *Server) CreateTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	t, err := s.data.CreateTask(ctx, convert.Str(req, "name"))
	if err != nil {
		return nil, toStatus("create task", err)
	}
	return respond(map[string]any{"task": convert.TaskMap(*t)})
}

// RenameTask renames a catalog task. Existing entries keep the old name.
func (s *Server) RenameTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	t, err := s.data.RenameTask(ctx, id, convert.Str(req, "name"))
	if err != nil {
		return nil, toStatus("rename task", err)
	}
	return respond(map[string]any{"task": convert.TaskMap(*t)})
}

// DeleteTask removes a catalog task.
func (s *Server) DeleteTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	if err := s.data.DeleteTask(ctx, id); err != nil {
		return nil, toStatus("delete task", err)
	}
	return &structpb.Struct{}, nil
}
