// ABOUTME: GraphViz generation for the escalation ladder and dossier timelines
// ABOUTME: Renders DOT source or image files through go-graphviz

package viz

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/google/uuid"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
)

type GraphGenerator struct {
	db *sql.DB
}

func NewGraphGenerator(database *sql.DB) *GraphGenerator {
	return &GraphGenerator{db: database}
}

var statusColors = map[models.DossierStatus]string{
	models.StatusInitial:   "palegreen",
	models.StatusReminder1: "khaki",
	models.StatusReminder2: "orange",
	models.StatusCritical:  "tomato",
}

var eventColors = map[models.EventStatus]string{
	models.EventScheduled: "lightblue",
	models.EventInFlight:  "gold",
	models.EventCompleted: "palegreen",
	models.EventFailed:    "tomato",
	models.EventCancelled: "lightgray",
}

// render writes the graph as DOT, or as an image when path has an image extension.
func render(ctx context.Context, build func(*cgraph.Graph) error, path string) (string, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	if err := build(graph); err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return "", gv.RenderFilename(ctx, graph, graphviz.SVG, path)
	case ".png":
		return "", gv.RenderFilename(ctx, graph, graphviz.PNG, path)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}

// GenerateLadderGraph draws the escalation ladder with open dossier counts per
// step and one edge per active rule that moves dossiers between steps. When
// path ends in .svg or .png the image is written there and the DOT is empty.
func (g *GraphGenerator) GenerateLadderGraph(ctx context.Context, path string) (string, error) {
	counts, err := db.CountDossiersByStatus(ctx, g.db)
	if err != nil {
		return "", fmt.Errorf("failed to count dossiers: %w", err)
	}
	rules, err := db.ListRules(ctx, g.db, true)
	if err != nil {
		return "", fmt.Errorf("failed to fetch rules: %w", err)
	}

	return render(ctx, func(graph *cgraph.Graph) error {
		graph.SetLabel("Escalation ladder")
		graph.SetRankDir(cgraph.LRRank)

		nodes := make(map[models.DossierStatus]*cgraph.Node)
		for _, status := range models.Ladder {
			node, err := graph.CreateNodeByName(string(status))
			if err != nil {
				return fmt.Errorf("failed to create status node: %w", err)
			}
			node.SetLabel(fmt.Sprintf("%s\n%d dossiers", status, counts[status]))
			node.SetShape("box")
			node.SetStyle("filled")
			node.SetFillColor(statusColors[status])
			nodes[status] = node
		}

		for i := 1; i < len(models.Ladder); i++ {
			edge, err := graph.CreateEdgeByName("", nodes[models.Ladder[i-1]], nodes[models.Ladder[i]])
			if err != nil {
				return fmt.Errorf("failed to create ladder edge: %w", err)
			}
			edge.SetStyle("dotted")
		}

		for i := range rules {
			r := &rules[i]
			_, sc := r.StatusChange()
			if sc == nil || !sc.NewStatus.Valid() {
				continue
			}
			for _, from := range ruleSources(r, sc.NewStatus) {
				edge, err := graph.CreateEdgeByName(r.ID.String(), nodes[from], nodes[sc.NewStatus])
				if err != nil {
					return fmt.Errorf("failed to create rule edge: %w", err)
				}
				edge.SetLabel(fmt.Sprintf("%s (>= %dd)", r.Name, r.TriggerDays))
			}
		}

		reset, err := graph.CreateEdgeByName("reset", nodes[models.StatusCritical], nodes[models.StatusInitial])
		if err != nil {
			return fmt.Errorf("failed to create reset edge: %w", err)
		}
		reset.SetLabel("full payment")
		reset.SetStyle("dashed")
		return nil
	}, path)
}

// ruleSources returns the steps a status change rule can move dossiers from.
func ruleSources(r *models.RelanceRule, target models.DossierStatus) []models.DossierStatus {
	var sources []models.DossierStatus
	if len(r.TriggerConditions.Statuses) > 0 {
		for _, s := range r.TriggerConditions.Statuses {
			if s.Valid() && s.Rank() < target.Rank() {
				sources = append(sources, s)
			}
		}
		return sources
	}
	if target.Rank() > 0 {
		sources = append(sources, models.Ladder[target.Rank()-1])
	}
	return sources
}

// GenerateDossierGraph draws a dossier's relance events in date order,
// colored by status.
func (g *GraphGenerator) GenerateDossierGraph(ctx context.Context, dossierID uuid.UUID, path string) (string, error) {
	d, err := db.GetDossier(ctx, g.db, dossierID)
	if err != nil {
		return "", err
	}
	events, err := db.ListEventsForDossier(ctx, g.db, dossierID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch events: %w", err)
	}

	return render(ctx, func(graph *cgraph.Graph) error {
		graph.SetLabel(fmt.Sprintf("%s (%s)", d.ClientName, d.Status))
		graph.SetRankDir(cgraph.LRRank)

		root, err := graph.CreateNodeByName("dossier")
		if err != nil {
			return fmt.Errorf("failed to create dossier node: %w", err)
		}
		root.SetLabel(fmt.Sprintf("%s\n%s due\n%d days", d.ClientName, d.TotalAmount.StringFixed(2), d.DaysOverdue))
		root.SetShape("box")
		root.SetStyle("filled")
		root.SetFillColor(statusColors[d.Status])

		prev := root
		for i := range events {
			ev := &events[i]
			node, err := graph.CreateNodeByName(ev.ID.String())
			if err != nil {
				return fmt.Errorf("failed to create event node: %w", err)
			}
			label := fmt.Sprintf("%s %s\n%s\n%s", models.FormatDate(ev.Date), ev.Time, ev.Type, ev.Status)
			if ev.NewStatus != "" {
				label += "\n-> " + string(ev.NewStatus)
			}
			node.SetLabel(label)
			node.SetShape("ellipse")
			node.SetStyle("filled")
			node.SetFillColor(eventColors[ev.Status])

			edge, err := graph.CreateEdgeByName("", prev, node)
			if err != nil {
				return fmt.Errorf("failed to create timeline edge: %w", err)
			}
			if !ev.IsAutomatic {
				edge.SetStyle("dashed")
			}
			prev = node
		}
		return nil
	}, path)
}
