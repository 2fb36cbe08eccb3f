package core

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultSchema returns the columns every newly created village starts with.
// The ids are fixed so seeded and created villages share them.
func DefaultSchema() []ColumnSchema {
	return []ColumnSchema{
		{ID: "areaName", Name: "Area Name", Type: ColumnText},
		{ID: "nagarName", Name: "Nagar Name", Type: ColumnText},
		{ID: "surveyNumber", Name: "Survey Number", Type: ColumnText},
		{ID: "valuePerSqm", Name: "Value (₹/sq.m)", Type: ColumnNumber},
		{ID: "ownerName", Name: "Owner Name", Type: ColumnText},
	}
}

// guidelineRow is one sample guideline-value entry.
type guidelineRow struct {
	area, nagar, survey string
	value               float64
	owner               string
}

// kovilpattiRows are the sample records of the Kovilpatti village.
var kovilpattiRows = []guidelineRow{
	{"Main Bazaar", "Gandhi Nagar", "101/A", 1500, "A. Kumar"},
	{"Ettayapuram Road", "Anna Nagar", "205/B", 1200, "S. Selvi"},
	{"Near Bus Stand", "Kamaraj Nagar", "315/C", 2000, "R. Murugan"},
	{"Railway Nagar", "Bharathi Nagar", "608/E", 1447, "M. Varma"},
	{"Lake View", "Subhash Nagar", "477/B", 1126, "K. Murthy"},
	{"Railway Nagar", "Bose Nagar", "199/E", 1414, "K. Murthy"},
	{"South Bypass", "Subhash Nagar", "244/B", 1383, "L. Devi"},
	{"South Bypass", "Bose Nagar", "959/B", 1219, "S. Anand"},
	{"Park Street", "Patel Nagar", "517/A", 2240, "S. Anand"},
	{"Park Street", "Tilak Nagar", "406/B", 2124, "V. Sita"},
	{"Railway Nagar", "Tilak Nagar", "459/B", 1742, "V. Sita"},
	{"Railway Nagar", "Bharathi Nagar", "997/A", 1539, "L. Devi"},
	{"North Colony", "Patel Nagar", "101/D", 1285, "V. Sita"},
	{"South Bypass", "Subhash Nagar", "216/F", 1251, "L. Devi"},
	{"Old Town", "Bharathi Nagar", "178/F", 1343, "K. Murthy"},
	{"East Gate", "Azad Nagar", "953/F", 901, "G. Ramesh"},
	{"North Colony", "Bose Nagar", "672/F", 2128, "L. Devi"},
	{"Railway Nagar", "Subhash Nagar", "935/D", 1331, "G. Ramesh"},
	{"North Colony", "Patel Nagar", "808/D", 1306, "P. Rajan"},
	{"Lake View", "Nehru Nagar", "840/C", 1986, "G. Ramesh"},
}

// seedVillages lists the villages under the Kovilpatti sub-registrar office
// as English and Tamil name pairs.
var seedVillages = [][2]string{
	{"Kovilpatti", "கோவில்பட்டி"},
	{"Ahilandapuram", "அகிலாண்டபுரம்"},
	{"Alampatti", "ஆலம்பட்டி"},
	{"Avalnatham", "ஆவல்நத்தம்"},
	{"Ayyanaruthu", "அய்யனாரூத்து"},
	{"Chidambarapuram", "சிதம்பராபுரம்"},
	{"Chithrampatti", "சித்ராம்பட்டி"},
	{"Duraiyur", "துறையூர்"},
	{"Edayankulam", "இடையன்குளம்"},
	{"Ettayapuram", "எட்டயபுரம்"},
	{"Ilambuvanam", "இளம்புவனம்"},
	{"Iluppaiyurani", "இலுப்பையூரணி"},
	{"Inam Maniyachi", "இனாம் மணியாச்சி"},
	{"Kadalaiyur", "கடலையூர்"},
	{"Kalampatti", "களம்பட்டி"},
	{"Kamanaickenpatti", "காமநாயக்கன்பட்டி"},
	{"Kappulingampatti", "கப்பலிங்கம்பட்டி"},
	{"Keelamangalam", "கீழமங்கலம்"},
	{"Keeleral", "கீழ ஈரால்"},
	{"Kodukkamparai", "கொடுக்குப்பாறை"},
	{"Lingampatti", "லிங்கம்பட்டி"},
	{"Maniyachikaranpatti", "மணியாச்சிக்காரன்பட்டி"},
	{"Melamandai", "மேலமந்தை"},
	{"Meleral", "மேல் ஈரால்"},
	{"Mudukkumeendanpatti", "முடுக்குமீண்டான்பட்டி"},
	{"Mukkuttumalai", "முக்குட்டுமலை"},
	{"Naduvirpatti", "நடுவிற்பட்டி"},
	{"Nakkalamuthanpatti", "நக்கலமுத்தன்பட்டி"},
	{"Nalattinputhur", "நாலட்டின்புதூர்"},
	{"Ramachandrapuram", "ராமச்சந்திரபுரம்"},
	{"Sindalakkarai", "சிந்தலக்கரை"},
	{"Theethampatti", "தீத்தம்பட்டி"},
	{"Thonugal", "தொனுகால்"},
	{"Thurkkamiyidal", "துர்க்காமியிடல்"},
	{"Usilankulam", "உசிலங்குளம்"},
	{"Villiseri", "வில்லிசேரி"},
}

// SeedDatasets builds the initial catalogue. Only Kovilpatti carries records.
func SeedDatasets(newID func() string) []Dataset {
	out := make([]Dataset, len(seedVillages))
	for i, v := range seedVillages {
		d := Dataset{
			Name:        v[0],
			DisplayName: v[1],
			Schema:      DefaultSchema(),
			Records:     []Record{},
		}
		if v[0] == "Kovilpatti" {
			for _, row := range kovilpattiRows {
				d.Records = append(d.Records, Record{
					ID: newID(),
					Fields: map[string]any{
						"areaName":     row.area,
						"nagarName":    row.nagar,
						"surveyNumber": row.survey,
						"valuePerSqm":  row.value,
						"ownerName":    row.owner,
					},
				})
			}
		}
		out[i] = d
	}
	return out
}

// SeedIfEmpty inserts the initial catalogue when store holds no datasets.
// It reports how many datasets were inserted.
func SeedIfEmpty(ctx context.Context, store Store, newID func() string) (int, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	seeded := 0
	for _, d := range SeedDatasets(newID) {
		if _, err := store.Create(ctx, d); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", d.Name, err)
		}
		seeded++
	}
	slog.Info("seeded village catalogue", "datasets", seeded)
	return seeded, nil
}
