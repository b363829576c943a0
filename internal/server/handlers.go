package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvossen/ensemble/internal/domain/project"
	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/domain/user"
	"github.com/jvossen/ensemble/internal/mutate"
	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
	"github.com/jvossen/ensemble/internal/wire"
)

// ProjectSummary is the listing entry returned by login and
// list_projects.
type ProjectSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// ProjectPayload is the serialized document returned by get_project.
type ProjectPayload struct {
	ID       string `json:"id"`
	Metadata string `json:"metadata"`
	Parts    string `json:"parts"`
}

func (s *Server) handleHandshake(ctx context.Context, args []string) wire.Reply {
	if len(args) != 1 {
		return wire.Fail("wrong number of arguments")
	}
	if args[0] != ProtocolVersion {
		return wire.Fail(ProtocolVersion)
	}
	return wire.OK(ProtocolVersion)
}

func (s *Server) handleRegister(ctx context.Context, args []string) wire.Reply {
	if len(args) != 3 {
		return wire.Fail("wrong number of arguments")
	}
	username, password, email := args[0], args[1], args[2]

	err := s.users.Register(ctx, username, password, email)
	switch {
	case err == nil:
		return wire.OK("")
	case errors.Is(err, user.ErrUsernameTaken):
		return wire.Fail("Username is taken")
	case errors.Is(err, user.ErrInvalidInput):
		return wire.Fail(err.Error())
	default:
		s.logger.Error("register failed", "username", username, "error", err)
		return wire.Fail("Internal Server Error")
	}
}

func (s *Server) handleLogin(ctx context.Context, args []string) wire.Reply {
	if len(args) != 2 {
		return wire.Fail("wrong number of arguments")
	}
	username, password := args[0], args[1]

	projectIDs, err := s.users.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, user.ErrLoginFailed) {
			return wire.Fail("failed to login")
		}
		s.logger.Error("login failed", "username", username, "error", err)
		return wire.Fail("Internal Server Error")
	}

	listing, err := s.projectListing(ctx, projectIDs)
	if err != nil {
		s.logger.Error("listing projects after login", "username", username, "error", err)
		return wire.Fail("Internal Server Error")
	}
	return wire.OK(listing)
}

func (s *Server) handleCreateProject(ctx context.Context, args []string) wire.Reply {
	if len(args) != 3 {
		return wire.Fail("wrong number of arguments")
	}
	owner, name, metadataJSON := args[0], args[1], args[2]

	id, err := s.projects.Create(ctx, owner, name, metadataJSON)
	switch {
	case err == nil:
		return wire.OK(id)
	case errors.Is(err, project.ErrUnknownUser):
		return wire.Fail("Who is that")
	case errors.Is(err, project.ErrInvalidInput):
		return wire.Fail(err.Error())
	default:
		s.logger.Error("create project failed", "owner", owner, "error", err)
		return wire.Fail("Internal Server Error")
	}
}

func (s *Server) handleListProjects(ctx context.Context, args []string) wire.Reply {
	if len(args) != 1 {
		return wire.Fail("wrong number of arguments")
	}
	username := args[0]

	ids, err := s.projects.ListByUser(ctx, username)
	if err != nil {
		s.logger.Error("list projects failed", "username", username, "error", err)
		return wire.Fail("Internal Server Error")
	}
	listing, err := s.projectListing(ctx, ids)
	if err != nil {
		s.logger.Error("list projects failed", "username", username, "error", err)
		return wire.Fail("Internal Server Error")
	}
	return wire.OK(listing)
}

// handleGetProject serves the full document through a temporary pin, so
// a fetch neither disturbs subscriber reference counts nor reads a
// stale copy when the document is already checked out.
func (s *Server) handleGetProject(ctx context.Context, args []string) wire.Reply {
	if len(args) != 1 {
		return wire.Fail("wrong number of arguments")
	}
	projectID := args[0]

	guard := s.pool.Guard(projectID)
	guard.Lock()
	defer guard.Unlock()

	proj, err := s.pool.Checkout(ctx, projectID, func(ctx context.Context) (*score.Project, error) {
		return s.store.Load(ctx, projectID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wire.Fail("What project is that")
		}
		s.logger.Error("loading project", "project_id", projectID, "error", err)
		return wire.Fail("Internal Server Error")
	}

	metadata, parts, serr := proj.Serialize()
	if err := s.pool.Release(projectID, func(proj *score.Project) error {
		return s.store.Save(ctx, proj)
	}); err != nil {
		s.logger.Error("releasing project after fetch", "project_id", projectID, "error", err)
	}
	if serr != nil {
		s.logger.Error("serializing project", "project_id", projectID, "error", serr)
		return wire.Fail("Internal Server Error")
	}
	return wire.OK(ProjectPayload{ID: proj.ID, Metadata: metadata, Parts: parts})
}

func (s *Server) handleSubscribe(ctx context.Context, args []string) wire.Reply {
	if len(args) != 2 {
		return wire.Fail("wrong number of arguments")
	}
	username, projectID := args[0], args[1]

	cookie, err := s.sessions.Subscribe(ctx, username, projectID)
	switch {
	case err == nil:
		return wire.OK(cookie)
	case errors.Is(err, session.ErrNotAuthorized):
		return wire.Fail("You are not a contributor")
	case errors.Is(err, repository.ErrNotFound):
		return wire.Fail("What project is that")
	default:
		s.logger.Error("subscribe failed",
			"username", username, "project_id", projectID, "error", err)
		return wire.Fail("Internal Server Error")
	}
}

func (s *Server) handleUnsubscribe(ctx context.Context, args []string) wire.Reply {
	if len(args) != 1 {
		return wire.Fail("wrong number of arguments")
	}
	cookie := args[0]

	err := s.sessions.Unsubscribe(ctx, cookie)
	switch {
	case err == nil:
		s.hub.Detach(cookie)
		return wire.OK("")
	case errors.Is(err, session.ErrMalformedCookie):
		return wire.Fail("That doesn't look like a cookie")
	case errors.Is(err, session.ErrNotSubscribed):
		return wire.Fail("You are not subscribed")
	default:
		s.logger.Error("unsubscribe failed", "error", err)
		return wire.Fail("Internal Server Error")
	}
}

// handleUpdate validates, applies, and fans out one edit. The broadcast
// happens inside the dispatcher's success callback, while the project
// lock is still held, so every subscriber sees edits in the order the
// document absorbed them. Failed updates are never broadcast.
func (s *Server) handleUpdate(ctx context.Context, args []string) wire.Reply {
	if len(args) != 6 {
		return wire.Fail("wrong number of arguments")
	}
	cookie, projectID := args[0], args[1]
	name, opArgs, partIndex, offset := args[2], args[3], args[4], args[5]

	sess, ok := s.sessions.Resolve(cookie)
	if !ok {
		if err := session.ParseCookie(cookie); err != nil {
			return wire.Fail("That doesn't look like a cookie")
		}
		return wire.Fail("You are not subscribed")
	}
	if sess.ProjectID != projectID {
		return wire.Fail("You are not subscribed")
	}

	op, err := mutate.Decode(name, opArgs, partIndex, offset)
	if err != nil {
		if errors.Is(err, mutate.ErrUnknownOperation) {
			return wire.Fail("INVALID OPERATION")
		}
		return wire.Fail(err.Error())
	}

	affected, err := s.dispatcher.Apply(ctx, projectID, op, func(affected *score.Range) {
		s.publishUpdate(projectID, args)
	})
	if err != nil {
		s.logger.Error("update failed",
			"project_id", projectID, "op", op.Name(), "error", err)
		return wire.Fail("Internal Server Error")
	}

	if affected == nil {
		return wire.OK("")
	}
	return wire.OK(affected)
}

func (s *Server) handleShare(ctx context.Context, args []string) wire.Reply {
	if len(args) != 2 {
		return wire.Fail("wrong number of arguments")
	}
	username, projectID := args[0], args[1]

	err := s.projects.Share(ctx, projectID, username)
	switch {
	case err == nil:
		return wire.OK("")
	case errors.Is(err, project.ErrUnknownUser):
		return wire.Fail("Who is that")
	case errors.Is(err, project.ErrProjectNotFound):
		return wire.Fail("What project is that")
	default:
		s.logger.Error("share failed",
			"username", username, "project_id", projectID, "error", err)
		return wire.Fail("Internal Server Error")
	}
}

// publishUpdate re-broadcasts the accepted update so subscribers replay
// exactly what the server applied. The sender's cookie is blanked first:
// it is a bearer credential, and no subscriber needs it to replay the
// edit.
func (s *Server) publishUpdate(projectID string, args []string) {
	redacted := make([]string, len(args))
	copy(redacted, args)
	redacted[0] = ""

	data, err := wire.EncodeRequest(wire.Request{Name: "update", Args: redacted})
	if err != nil {
		s.logger.Error("encoding broadcast", "project_id", projectID, "error", err)
		return
	}
	s.hub.Publish(projectID, data)
}

func (s *Server) projectListing(ctx context.Context, ids []string) ([]ProjectSummary, error) {
	listing := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.projects.Get(ctx, id)
		if err != nil {
			if errors.Is(err, project.ErrProjectNotFound) {
				continue
			}
			return nil, fmt.Errorf("loading project %s: %w", id, err)
		}
		listing = append(listing, ProjectSummary{ID: rec.ID, Name: rec.Name, Owner: rec.Owner})
	}
	return listing, nil
}
