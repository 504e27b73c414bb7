package crawler

// DocRoots are the documentation trees discovered links must stay within.
var DocRoots = []string{
	"https://doc.mapeditor.org/en/stable/",
	"https://tiled.readthedocs.io/en/latest/",
}

// SeedURLs is the fixed crawl set covering the Tiled manual and reference.
func SeedURLs() []string {
	base := "https://doc.mapeditor.org/en/stable/"
	paths := []string{
		"",
		"manual/introduction",
		"manual/getting-started",
		"manual/layers",
		"manual/editing-tile-layers",
		"manual/objects",
		"manual/editing-tilesets",
		"manual/custom-properties",
		"manual/using-templates",
		"manual/using-infinite-maps",
		"manual/worlds",
		"manual/using-commands",
		"manual/automapping",
		"manual/export",
		"manual/export-generic",
		"manual/export-custom",
		"reference/json-map-format",
		"reference/tmx-map-format",
		"reference/scripting-api",
		"reference/global-tile-ids",
	}

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, base+p)
	}
	return urls
}
