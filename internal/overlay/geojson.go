package overlay

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON exports the overlay as a FeatureCollection: one LineString per
// consecutive pair of points in timestamp order, coloured by its first
// point, followed by one Point feature per sample.
func (o *Overlay) ToGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	path := pathOrder(o.Points)

	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		f := geojson.NewFeature(orb.LineString{
			{a.Longitude, a.Latitude},
			{b.Longitude, b.Latitude},
		})
		f.Properties["kind"] = "segment"
		f.Properties["color"] = a.Color
		f.Properties["metric"] = o.Metric
		if a.Value != nil {
			f.Properties["value"] = *a.Value
		}
		fc.Append(f)
	}

	for _, pt := range path {
		f := geojson.NewFeature(orb.Point{pt.Longitude, pt.Latitude})
		f.Properties["kind"] = "sample"
		f.Properties["timestamp"] = pt.Timestamp
		f.Properties["group"] = pt.Group
		f.Properties["color"] = pt.Color
		f.Properties["tooltip"] = pt.Tooltip
		if pt.Value != nil {
			f.Properties["value"] = *pt.Value
		}
		if o.Unit != "" {
			f.Properties["unit"] = o.Unit
		}
		fc.Append(f)
	}

	return fc
}
