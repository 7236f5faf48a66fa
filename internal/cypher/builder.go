// Package cypher turns a layer configuration into the Cypher text that is
// executed for it. Every function here is pure: the same config always yields
// byte-identical output, which is what the query preview relies on.
package cypher

import (
	"strconv"
	"strings"

	"neomap/core-go/internal/layer"
)

// SpatialSRID is the coordinate system spatial-layer nodes are filtered to.
const SpatialSRID = 4326

// Preview is what would be submitted for a layer.
type Preview struct {
	Node         string `json:"node"`
	Relationship string `json:"relationship,omitempty"`
}

// PreviewQueries returns the node query and, for relationship rendering, the
// relationship query.
func PreviewQueries(cfg layer.Config) Preview {
	p := Preview{Node: NodeQuery(cfg)}
	if NeedsRelationships(cfg) {
		p.Relationship = RelationshipQuery(cfg)
	}
	return p
}

// NeedsRelationships reports whether an update must also fetch relationships.
func NeedsRelationships(cfg layer.Config) bool {
	return cfg.Rendering == layer.RenderingRelations
}

// NodeQuery builds the point query for the active layer type.
func NodeQuery(cfg layer.Config) string {
	switch cfg.LayerType {
	case layer.TypeCypher:
		return cfg.Cypher
	case layer.TypeSpatial:
		return spatialQuery(cfg)
	case layer.TypePoint:
		return pointQuery(cfg)
	default:
		return latLonQuery(cfg)
	}
}

// NodeFilter returns the label filter clause for node variable n, or "" when
// no label is selected.
func NodeFilter(labels []layer.Option) string {
	if len(labels) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nAND (false")
	for _, l := range labels {
		sb.WriteString(" OR n:")
		sb.WriteString(QuoteIdentifier(l.Label))
	}
	sb.WriteString(")")
	return sb.String()
}

func latLonQuery(cfg layer.Config) string {
	lat := prop("n", cfg.LatitudeProperty.Value)
	lon := prop("n", cfg.LongitudeProperty.Value)

	var sb strings.Builder
	sb.WriteString("MATCH (n) WHERE true")
	sb.WriteString(NodeFilter(cfg.NodeLabels))
	sb.WriteString("\nAND " + lat + " IS NOT NULL AND " + lon + " IS NOT NULL")
	sb.WriteString("\nRETURN " + lat + " as latitude, " + lon + " as longitude")
	writeTooltip(&sb, "n", cfg.TooltipProperty)
	writeLimit(&sb, cfg.Limit)
	return sb.String()
}

func pointQuery(cfg layer.Config) string {
	point := prop("n", cfg.PointProperty.Value)

	var sb strings.Builder
	sb.WriteString("MATCH (n) WHERE true")
	sb.WriteString(NodeFilter(cfg.NodeLabels))
	sb.WriteString("\nAND " + point + " IS NOT NULL")
	sb.WriteString("\nRETURN " + point + ".y as latitude, " + point + ".x as longitude")
	writeTooltip(&sb, "n", cfg.TooltipProperty)
	writeLimit(&sb, cfg.Limit)
	return sb.String()
}

func spatialQuery(cfg layer.Config) string {
	var sb strings.Builder
	sb.WriteString("CALL spatial.layer(" + QuoteString(cfg.SpatialLayer.Value) + ") YIELD node ")
	sb.WriteString("WITH node ")
	sb.WriteString("MATCH (node)-[:RTREE_ROOT]-()-[:RTREE_CHILD*1..10]->()-[:RTREE_REFERENCE]-(n) ")
	sb.WriteString("WHERE n.point.srid = " + strconv.Itoa(SpatialSRID) + " ")
	sb.WriteString("RETURN n.point.x as longitude, n.point.y as latitude")
	writeTooltip(&sb, "n", cfg.TooltipProperty)
	writeLimit(&sb, cfg.Limit)
	return sb.String()
}

// RelationshipQuery builds the edge query. Only the lat/lon coordinate model
// is supported, whatever the layer type.
//
// The endpoint filter keeps a relationship only when both endpoints carry
// the same selected label.
func RelationshipQuery(cfg layer.Config) string {
	latN := prop("n", cfg.LatitudeProperty.Value)
	lonN := prop("n", cfg.LongitudeProperty.Value)
	latM := prop("m", cfg.LatitudeProperty.Value)
	lonM := prop("m", cfg.LongitudeProperty.Value)

	var sb strings.Builder
	sb.WriteString("MATCH (n)-[r]->(m) WHERE true")
	sb.WriteString(relationshipFilter(cfg.NodeLabels, cfg.RelationshipLabels))
	sb.WriteString("\nAND " + latN + " IS NOT NULL AND " + lonN + " IS NOT NULL AND " + latM + " IS NOT NULL AND " + lonM + " IS NOT NULL")
	sb.WriteString("\nRETURN " + latN + " as start_latitude, " + lonN + " as start_longitude, " + latM + " as end_latitude, " + lonM + " as end_longitude")
	writeTooltip(&sb, "n", cfg.RelationshipTooltipProperty)
	writeLimit(&sb, cfg.Limit)
	return sb.String()
}

func relationshipFilter(nodeLabels, relTypes []layer.Option) string {
	var sb strings.Builder
	if len(nodeLabels) > 0 {
		sb.WriteString("\nAND (false")
		for _, l := range nodeLabels {
			q := QuoteIdentifier(l.Label)
			sb.WriteString(" OR (n:" + q + " AND m:" + q + ")")
		}
		sb.WriteString(")")
	}
	if len(relTypes) > 0 {
		sb.WriteString("\nAND (false")
		for _, l := range relTypes {
			sb.WriteString(" OR type(r) = " + QuoteString(l.Label))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func prop(variable, name string) string {
	return variable + "." + QuoteIdentifier(name)
}

func writeTooltip(sb *strings.Builder, variable string, tooltip layer.Option) {
	if !tooltip.IsSet() {
		return
	}
	sb.WriteString(", " + prop(variable, tooltip.Value) + " as tooltip")
}

func writeLimit(sb *strings.Builder, limit layer.Limit) {
	if !limit.Valid() {
		return
	}
	sb.WriteString("\nLIMIT " + strconv.Itoa(int(limit)))
}
