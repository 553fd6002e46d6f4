package domain

// DomainCluster ties a news beat to the stock-footage vocabulary that
// usually illustrates it. Triggers are matched against segment text,
// Visuals seed expansion queries and title overlap scoring.
type DomainCluster struct {
	Name     string
	Triggers []string
	Visuals  []string
}

var DomainClusters = []DomainCluster{
	{
		Name:     "economy",
		Triggers: []string{"economy", "economic", "inflation", "market", "markets", "trade", "tariff", "tariffs", "gdp", "recession", "bank", "banks", "finance", "financial", "currency", "stocks", "exchange", "prices"},
		Visuals:  []string{"stock exchange", "trading floor", "bank district", "cash counting", "shopping street"},
	},
	{
		Name:     "politics",
		Triggers: []string{"election", "elections", "government", "parliament", "minister", "president", "chancellor", "vote", "voting", "summit", "sanctions", "policy", "senate", "congress", "coalition"},
		Visuals:  []string{"government building", "parliament session", "press conference", "national flag", "ballot box"},
	},
	{
		Name:     "conflict",
		Triggers: []string{"war", "military", "troops", "missile", "missiles", "attack", "strike", "strikes", "army", "defense", "offensive", "ceasefire", "frontline"},
		Visuals:  []string{"military convoy", "soldiers marching", "armored vehicles", "destroyed buildings", "air defense"},
	},
	{
		Name:     "weather",
		Triggers: []string{"storm", "hurricane", "flood", "flooding", "heatwave", "wildfire", "wildfires", "snow", "blizzard", "drought", "typhoon", "earthquake"},
		Visuals:  []string{"storm clouds", "heavy rain street", "flooded road", "wildfire smoke", "snow covered city"},
	},
	{
		Name:     "energy",
		Triggers: []string{"energy", "oil", "gas", "pipeline", "electricity", "nuclear", "power", "fuel", "renewable", "solar"},
		Visuals:  []string{"oil refinery", "gas pipeline", "power plant cooling towers", "electricity pylons", "wind turbines"},
	},
	{
		Name:     "health",
		Triggers: []string{"health", "hospital", "hospitals", "virus", "vaccine", "outbreak", "pandemic", "disease", "doctors", "medicine"},
		Visuals:  []string{"hospital corridor", "medical laboratory", "ambulance lights", "surgeons operating", "vaccination clinic"},
	},
	{
		Name:     "technology",
		Triggers: []string{"technology", "ai", "chip", "chips", "semiconductor", "internet", "cyber", "satellite", "satellites", "rocket", "launch", "startup"},
		Visuals:  []string{"data center", "circuit board closeup", "server room", "rocket launch", "satellite in orbit"},
	},
	{
		Name:     "transport",
		Triggers: []string{"airport", "flight", "flights", "airline", "train", "railway", "port", "shipping", "cargo", "traffic", "border"},
		Visuals:  []string{"airport terminal", "airplane takeoff", "container port", "high speed train", "highway traffic"},
	},
	{
		Name:     "migration",
		Triggers: []string{"migration", "migrants", "refugees", "asylum", "crossing", "deportation"},
		Visuals:  []string{"border fence", "refugee camp", "people walking with luggage", "coast guard boat"},
	},
}

// MarqueeKeywords are loud thumbnail-bait words. A clip title carrying
// one the segment never mentions is usually off-topic filler.
var MarqueeKeywords = []string{
	"breaking", "exclusive", "shocking", "viral", "compilation",
	"reaction", "prank", "trailer", "gameplay", "meme", "top 10",
	"explained", "tutorial",
}
