package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"hitomidl/internal/domain"
)

// Command is one GUI-to-engine request, as read off the stdio bridge in
// cmd/serve.go: a command name plus its JSON-encoded argument object.
type Command struct {
	Name string          `json:"command"`
	Args json.RawMessage `json:"args"`
}

// Dispatch routes cmd to the matching Engine method and wraps the result
// in the `{status, data}` / `{status, error}` envelope of §6. It is the
// only entry point cmd/serve.go needs.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) domain.CommandResult {
	switch cmd.Name {
	case "getConfig":
		cfg, err := e.GetConfig()
		return result(cfg, err)

	case "saveConfig":
		var args domain.Config
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		return result(struct{}{}, e.SaveConfig(args))

	case "search":
		var args struct {
			Query        string `json:"query"`
			PageNum      int    `json:"pageNum"`
			ByPopularity bool   `json:"byPopularity"`
		}
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		res, err := e.Search(ctx, args.Query, args.PageNum)
		return result(res, err)

	case "getPage":
		var args struct {
			IDs     []int `json:"ids"`
			PageNum int   `json:"pageNum"`
		}
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		res, err := e.GetPage(ctx, args.IDs, args.PageNum)
		return result(res, err)

	case "getComic":
		var args struct {
			ID int `json:"id"`
		}
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		comic, err := e.GetComic(ctx, args.ID)
		return result(comic, err)

	case "getSyncedComic":
		var args domain.Comic
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		comic, err := e.GetSyncedComic(args)
		return result(comic, err)

	case "getCoverData":
		var args domain.Comic
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		data, err := e.GetCoverData(ctx, args)
		return result(data, err)

	case "getSearchSuggestions":
		var args struct {
			Fragment string `json:"fragment"`
		}
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		suggestions, err := e.GetSearchSuggestions(ctx, args.Fragment)
		return result(suggestions, err)

	case "createDownloadTask":
		var args domain.Comic
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		return result(struct{}{}, e.CreateDownloadTask(args))

	case "pauseDownloadTask":
		return result(struct{}{}, e.withComicID(cmd.Args, e.PauseDownloadTask))

	case "resumeDownloadTask":
		return result(struct{}{}, e.withComicID(cmd.Args, e.ResumeDownloadTask))

	case "cancelDownloadTask":
		return result(struct{}{}, e.withComicID(cmd.Args, e.CancelDownloadTask))

	case "getDownloadedComics":
		comics, err := e.GetDownloadedComics()
		return result(comics, err)

	case "exportPdf":
		var args domain.Comic
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		return result(struct{}{}, e.ExportPdf(args))

	case "exportCbz":
		var args domain.Comic
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		return result(struct{}{}, e.ExportCbz(args))

	case "getLogsDirSize":
		size, err := e.GetLogsDirSize()
		return result(size, err)

	case "showPathInFileManager":
		var args struct {
			Path string `json:"path"`
		}
		if err := unmarshalArgs(cmd.Args, &args); err != nil {
			return domain.Fail(err)
		}
		return result(struct{}{}, e.ShowPathInFileManager(args.Path))

	default:
		return domain.Fail(domain.NewParseError(fmt.Sprintf("unknown command %q", cmd.Name), nil))
	}
}

func (e *Engine) withComicID(raw json.RawMessage, fn func(int) error) error {
	var args struct {
		ID int `json:"id"`
	}
	if err := unmarshalArgs(raw, &args); err != nil {
		return err
	}
	return fn(args.ID)
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.NewParseError("malformed command arguments", err)
	}
	return nil
}

func result(data any, err error) domain.CommandResult {
	if err != nil {
		return domain.Fail(err)
	}
	return domain.OK(data)
}
