// File: internal/usecase/export_uc.go
package usecase

import (
	"context"
	"fmt"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// SceneExporter saves a room's finished 3D scene locally, either as the
// single Blender-compatible file or as the zipped asset bundle.
type SceneExporter struct {
	api       adapter.ResourceAPI
	downloads adapter.Downloader
	log       *zerolog.Logger
}

func NewSceneExporter(api adapter.ResourceAPI, downloads adapter.Downloader, log *zerolog.Logger) *SceneExporter {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &SceneExporter{api: api, downloads: downloads, log: log}
}

// Export returns the path written.
func (e *SceneExporter) Export(ctx context.Context, ref model.WorkspaceRef, bundle bool) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.IsProject() {
		return "", fmt.Errorf("%w: a 3D export needs a room", domain.ErrInvalidArgument)
	}
	room, err := e.api.GetRoom(ctx, ref.ProjectID, ref.RoomID)
	if err != nil {
		return "", fmt.Errorf("fetch room: %w", err)
	}

	var path string
	if bundle {
		data, berr := e.api.ExportBundle(ctx, ref.ProjectID, ref.RoomID)
		if berr != nil {
			return "", fmt.Errorf("export bundle: %w", berr)
		}
		path, err = e.downloads.FromBytes(ctx, data, fileName(room.Name, room.ID, "scene-assets.zip"))
	} else {
		path, err = saveSceneExport(ctx, e.api, e.downloads, ref, room)
	}
	if err != nil {
		return "", err
	}
	e.log.Info().Str("workspace", ref.Key()).Bool("bundle", bundle).Str("path", path).Msg("scene exported")
	return path, nil
}

// saveSceneExport downloads the export file the room already references,
// asking the server to resolve one when it does not.
func saveSceneExport(ctx context.Context, api adapter.ResourceAPI, downloads adapter.Downloader, ref model.WorkspaceRef, room *model.Room) (string, error) {
	exp := &model.SceneExport{}
	if room != nil && room.WorldLabs != nil && isHTTPURL(room.WorldLabs.ExportURL) {
		exp.URL, exp.Format = room.WorldLabs.ExportURL, room.WorldLabs.ExportFormat
	} else {
		resolved, err := api.GetExport(ctx, ref.ProjectID, ref.RoomID)
		if err != nil {
			return "", fmt.Errorf("scene export: %w", err)
		}
		exp = resolved
	}
	name, id := "", ref.RoomID
	if room != nil {
		name = room.Name
	}
	return downloads.FromURL(ctx, exp.URL, fileName(name, id, "scene."+exp.Ext()))
}
