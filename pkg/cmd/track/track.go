// Package track provides admin commands to manage the track catalogue.
package track

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/db/postgres"
	"github.com/gridrace/race-service-go/pkg/model"
	trackrepos "github.com/gridrace/race-service-go/pkg/repository/track"
)

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "manage the track catalogue",
	}
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	return cmd
}

// trackDef is the import file format. The hash is derived from the path
// coordinates, not taken from the file.
type trackDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId"`
	Type        string `json:"type"`
	Laps        int    `json:"laps,omitempty"`
	Verified    bool   `json:"verified"`
	Snapped     bool   `json:"snapped"`
	Segments    [][]struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	} `json:"segments"`
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "imports a track definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importTrack(args[0])
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists known tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTracks()
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <hash>",
		Short: "deletes a track and its races",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteTrack(args[0])
		},
	}
}

func importTrack(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var def trackDef
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("invalid track file: %w", err)
	}
	track, path, err := convertDef(&def)
	if err != nil {
		return err
	}

	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()
	repo := trackrepos.NewTrackRepository(pool)
	if err := repo.Ensure(context.Background(), track, path); err != nil {
		return err
	}
	log.Info("track imported",
		log.String("hash", track.Hash), log.String("name", track.Name))
	return nil
}

func convertDef(def *trackDef) (*model.Track, *model.TrackPath, error) {
	var trackType model.TrackType
	switch def.Type {
	case "sprint":
		trackType = model.TrackTypeSprint
	case "circuit":
		trackType = model.TrackTypeCircuit
	default:
		return nil, nil, fmt.Errorf("unknown track type %q", def.Type)
	}
	segments := make([]model.PathSegment, len(def.Segments))
	for i, seg := range def.Segments {
		if len(seg) < 2 {
			return nil, nil, fmt.Errorf("segment %d has %d points", i, len(seg))
		}
		points := make([]model.GeoPoint, len(seg))
		for j, pt := range seg {
			points[j] = model.GeoPoint{Longitude: pt.Longitude, Latitude: pt.Latitude}
		}
		segments[i] = model.PathSegment{Points: points}
	}
	hash := model.ContentHash(segments)
	track := &model.Track{
		Hash:        hash,
		Name:        def.Name,
		Description: def.Description,
		OwnerID:     def.OwnerID,
		Type:        trackType,
		Laps:        def.Laps,
		Verified:    def.Verified,
		Snapped:     def.Snapped,
	}
	return track, &model.TrackPath{TrackHash: hash, Segments: segments}, nil
}

func listTracks() error {
	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()
	repo := trackrepos.NewTrackRepository(pool)
	tracks, err := repo.LoadAll(context.Background())
	if err != nil {
		return err
	}
	for _, t := range tracks {
		fmt.Printf("%s  %-10s %-25s owner=%s raceable=%v\n",
			t.Hash, t.Type, t.Name, t.OwnerID, t.Raceable())
	}
	return nil
}

func deleteTrack(hash string) error {
	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()
	repo := trackrepos.NewTrackRepository(pool)
	n, err := repo.DeleteByHash(context.Background(), hash)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("track %s not found", hash)
	}
	log.Info("track deleted", log.String("hash", hash))
	return nil
}
