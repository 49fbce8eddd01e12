package verses

import "strings"

// Topics are the themes a verse can be generated for.
var Topics = []string{
	"love", "relationships", "marriage", "faith", "trust", "patience",
	"forgiveness", "wisdom", "guidance", "hope", "commitment", "purity",
	"communication", "understanding", "respect", "honor", "devotion", "unity",
}

// Passage is a catalogued scripture verse.
type Passage struct {
	Text      string
	Reference string
	Topic     string
}

// Catalog is the fixed set of passages verses are drawn from.
var Catalog = []Passage{
	{"Above all else, guard your heart, for everything you do flows from it.", "Proverbs 4:23", "love"},
	{"Two are better than one, because they have a good return for their labor.", "Ecclesiastes 4:9", "relationships"},
	{"Therefore what God has joined together, let no one separate.", "Mark 10:9", "marriage"},
	{"Love is patient, love is kind. It does not envy, it does not boast, it is not proud.", "1 Corinthians 13:4", "love"},
	{"Trust in the Lord with all your heart and lean not on your own understanding.", "Proverbs 3:5", "trust"},
	{"Be completely humble and gentle; be patient, bearing with one another in love.", "Ephesians 4:2", "patience"},
	{"If we confess our sins, he is faithful and just and will forgive us our sins.", "1 John 1:9", "forgiveness"},
	{"If any of you lacks wisdom, you should ask God, who gives generously to all.", "James 1:5", "wisdom"},
	{"For I know the plans I have for you, declares the Lord, plans to prosper you.", "Jeremiah 29:11", "guidance"},
	{"And we know that in all things God works for the good of those who love him.", "Romans 8:28", "hope"},
	{"Husbands, love your wives, just as Christ loved the church.", "Ephesians 5:25", "marriage"},
	{"A friend loves at all times, and a brother is born for a time of adversity.", "Proverbs 17:17", "relationships"},
	{"Let all that you do be done in love.", "1 Corinthians 16:14", "love"},
	{"Be kind to one another, tenderhearted, forgiving one another.", "Ephesians 4:32", "forgiveness"},
	{"The heart of man plans his way, but the Lord establishes his steps.", "Proverbs 16:9", "guidance"},
}

// reflections are rendered with the topic substituted for %[1]s.
var reflections = []string{
	"In the context of %[1]s, this verse reminds us that God's design for relationships requires us to center our hearts on Him first. When we guard our hearts according to Scripture, we create space for healthy, God-honoring connections.",
	"As we navigate dating and relationships, %[1]s becomes our compass. This scripture encourages us to approach every interaction with intentionality, seeking God's wisdom in all we do.",
	"Biblical dating means allowing %[1]s to shape our choices. This verse calls us to higher standards - not just finding someone who makes us happy, but someone who helps us grow closer to Christ.",
	"God's word teaches that %[1]s is foundational to lasting love. In our journey toward marriage, let this verse guide how we treat others and ourselves with dignity and respect.",
	"True %[1]s in relationships reflects God's character. This scripture reminds us that our dating lives should be testimonies of Christ's love - patient, kind, and selfless.",
	"When we practice %[1]s in our relationships, we honor the One who designed love itself. May this verse inspire you to seek relationships that glorify God and build His kingdom.",
	"Dating with %[1]s means trusting God's timing and plan. This verse encourages us to wait well, grow in faith, and prepare our hearts for the spouse God may have for us.",
	"In a culture that often misunderstands love, %[1]s anchored in Scripture sets us apart. Let this verse be a beacon as you pursue relationships that reflect Christ's love for the church.",
}

func passagesFor(topic string) []Passage {
	var out []Passage
	for _, p := range Catalog {
		if strings.EqualFold(p.Topic, topic) {
			out = append(out, p)
		}
	}
	return out
}
