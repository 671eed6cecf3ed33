package diplomacy

import "sync"

var (
	stdMapOnce sync.Once
	stdMapInst *Map
)

// StandardMap returns the standard 75-province Diplomacy map with all
// provinces, adjacencies, and starting positions. The map is built once and
// cached; subsequent calls return the same pointer. Callers must not mutate
// the returned map.
func StandardMap() *Map {
	stdMapOnce.Do(func() {
		stdMapInst = buildStandardMap()
	})
	return stdMapInst
}

func buildStandardMap() *Map {
	m := &Map{
		Provinces:        make(map[string]*Province, 75),
		Adjacencies:      make(map[string][]Adjacency, 150),
		victoryThreshold: 18,
	}

	prov := func(id, name string, pt ProvinceType, sc bool, hp Power, coasts ...Coast) {
		m.Provinces[id] = &Province{
			ID:             id,
			Name:           name,
			Type:           pt,
			IsSupplyCenter: sc,
			HomePower:      hp,
			Coasts:         coasts,
		}
	}

	// one adds a single directed adjacency entry.
	one := func(from string, fromCoast Coast, to string, toCoast Coast, armyOK, fleetOK bool) {
		m.Adjacencies[from] = append(m.Adjacencies[from], Adjacency{
			From:      from,
			FromCoast: fromCoast,
			To:        to,
			ToCoast:   toCoast,
			ArmyOK:    armyOK,
			FleetOK:   fleetOK,
		})
	}

	// army adds a bidirectional army-only adjacency between two provinces.
	army := func(from, to string) {
		one(from, NoCoast, to, NoCoast, true, false)
		one(to, NoCoast, from, NoCoast, true, false)
	}

	// fleet adds a bidirectional fleet-only adjacency with optional coast specifiers.
	fleet := func(from string, fromCoast Coast, to string, toCoast Coast) {
		one(from, fromCoast, to, toCoast, false, true)
		one(to, toCoast, from, fromCoast, false, true)
	}

	// both adds a bidirectional adjacency for both armies and fleets (no coast).
	both := func(from, to string) {
		one(from, NoCoast, to, NoCoast, true, true)
		one(to, NoCoast, from, NoCoast, true, true)
	}

	// Provinces: 14 inland + 39 coastal + 3 split-coast + 19 sea = 75.

	// Inland
	prov("boh", "Bohemia", Land, false, Neutral)
	prov("bud", "Budapest", Land, true, Austria)
	prov("bur", "Burgundy", Land, false, Neutral)
	prov("gal", "Galicia", Land, false, Neutral)
	prov("mos", "Moscow", Land, true, Russia)
	prov("mun", "Munich", Land, true, Germany)
	prov("par", "Paris", Land, true, France)
	prov("ruh", "Ruhr", Land, false, Neutral)
	prov("ser", "Serbia", Land, true, Neutral)
	prov("sil", "Silesia", Land, false, Neutral)
	prov("tyr", "Tyrolia", Land, false, Neutral)
	prov("ukr", "Ukraine", Land, false, Neutral)
	prov("vie", "Vienna", Land, true, Austria)
	prov("war", "Warsaw", Land, true, Russia)

	// Coastal, single coast
	prov("alb", "Albania", Coastal, false, Neutral)
	prov("ank", "Ankara", Coastal, true, Turkey)
	prov("apu", "Apulia", Coastal, false, Neutral)
	prov("arm", "Armenia", Coastal, false, Neutral)
	prov("bel", "Belgium", Coastal, true, Neutral)
	prov("ber", "Berlin", Coastal, true, Germany)
	prov("bre", "Brest", Coastal, true, France)
	prov("cly", "Clyde", Coastal, false, Neutral)
	prov("con", "Constantinople", Coastal, true, Turkey)
	prov("den", "Denmark", Coastal, true, Neutral)
	prov("edi", "Edinburgh", Coastal, true, England)
	prov("fin", "Finland", Coastal, false, Neutral)
	prov("gas", "Gascony", Coastal, false, Neutral)
	prov("gre", "Greece", Coastal, true, Neutral)
	prov("hol", "Holland", Coastal, true, Neutral)
	prov("kie", "Kiel", Coastal, true, Germany)
	prov("lon", "London", Coastal, true, England)
	prov("lvn", "Livonia", Coastal, false, Neutral)
	prov("lvp", "Liverpool", Coastal, true, England)
	prov("mar", "Marseilles", Coastal, true, France)
	prov("naf", "North Africa", Coastal, false, Neutral)
	prov("nap", "Naples", Coastal, true, Italy)
	prov("nwy", "Norway", Coastal, true, Neutral)
	prov("pic", "Picardy", Coastal, false, Neutral)
	prov("pie", "Piedmont", Coastal, false, Neutral)
	prov("por", "Portugal", Coastal, true, Neutral)
	prov("pru", "Prussia", Coastal, false, Neutral)
	prov("rom", "Rome", Coastal, true, Italy)
	prov("rum", "Rumania", Coastal, true, Neutral)
	prov("sev", "Sevastopol", Coastal, true, Russia)
	prov("smy", "Smyrna", Coastal, true, Turkey)
	prov("swe", "Sweden", Coastal, true, Neutral)
	prov("syr", "Syria", Coastal, false, Neutral)
	prov("tri", "Trieste", Coastal, true, Austria)
	prov("tun", "Tunisia", Coastal, true, Neutral)
	prov("tus", "Tuscany", Coastal, false, Neutral)
	prov("ven", "Venice", Coastal, true, Italy)
	prov("wal", "Wales", Coastal, false, Neutral)
	prov("yor", "Yorkshire", Coastal, false, Neutral)

	// Split coasts
	prov("bul", "Bulgaria", Coastal, true, Neutral, EastCoast, SouthCoast)
	prov("spa", "Spain", Coastal, true, Neutral, NorthCoast, SouthCoast)
	prov("stp", "St. Petersburg", Coastal, true, Russia, NorthCoast, SouthCoast)

	// Seas
	prov("adr", "Adriatic Sea", Sea, false, Neutral)
	prov("aeg", "Aegean Sea", Sea, false, Neutral)
	prov("bal", "Baltic Sea", Sea, false, Neutral)
	prov("bar", "Barents Sea", Sea, false, Neutral)
	prov("bla", "Black Sea", Sea, false, Neutral)
	prov("bot", "Gulf of Bothnia", Sea, false, Neutral)
	prov("eas", "Eastern Mediterranean", Sea, false, Neutral)
	prov("eng", "English Channel", Sea, false, Neutral)
	prov("gol", "Gulf of Lyon", Sea, false, Neutral)
	prov("hel", "Heligoland Bight", Sea, false, Neutral)
	prov("ion", "Ionian Sea", Sea, false, Neutral)
	prov("iri", "Irish Sea", Sea, false, Neutral)
	prov("mao", "Mid-Atlantic Ocean", Sea, false, Neutral)
	prov("nao", "North Atlantic Ocean", Sea, false, Neutral)
	prov("nrg", "Norwegian Sea", Sea, false, Neutral)
	prov("nth", "North Sea", Sea, false, Neutral)
	prov("ska", "Skagerrak", Sea, false, Neutral)
	prov("tys", "Tyrrhenian Sea", Sea, false, Neutral)
	prov("wes", "Western Mediterranean", Sea, false, Neutral)

	// Adjacencies. Each pair appears exactly once.
	//   fleet - sea<->sea, sea<->coastal, or coastal<->coastal with only a sea border
	//   army  - involves an inland province, or coastal<->coastal with only a land border
	//   both  - coastal<->coastal sharing both a land and a sea border
	// Army connections to split-coast provinces ignore coasts; fleet
	// connections name the specific coast.

	// Sea to sea
	fleet("adr", NoCoast, "ion", NoCoast)
	fleet("aeg", NoCoast, "eas", NoCoast)
	fleet("aeg", NoCoast, "ion", NoCoast)
	fleet("bal", NoCoast, "bot", NoCoast)
	fleet("eng", NoCoast, "iri", NoCoast)
	fleet("eng", NoCoast, "mao", NoCoast)
	fleet("eng", NoCoast, "nth", NoCoast)
	fleet("gol", NoCoast, "tys", NoCoast)
	fleet("gol", NoCoast, "wes", NoCoast)
	fleet("hel", NoCoast, "nth", NoCoast)
	fleet("ion", NoCoast, "eas", NoCoast)
	fleet("ion", NoCoast, "tys", NoCoast)
	fleet("iri", NoCoast, "mao", NoCoast)
	fleet("iri", NoCoast, "nao", NoCoast)
	fleet("mao", NoCoast, "nao", NoCoast)
	fleet("mao", NoCoast, "wes", NoCoast)
	fleet("nao", NoCoast, "nrg", NoCoast)
	fleet("nth", NoCoast, "nrg", NoCoast)
	fleet("nth", NoCoast, "ska", NoCoast)
	fleet("nrg", NoCoast, "bar", NoCoast)
	fleet("tys", NoCoast, "wes", NoCoast)

	// Sea to coast
	fleet("adr", NoCoast, "alb", NoCoast)
	fleet("adr", NoCoast, "apu", NoCoast)
	fleet("adr", NoCoast, "tri", NoCoast)
	fleet("adr", NoCoast, "ven", NoCoast)
	fleet("aeg", NoCoast, "bul", SouthCoast)
	fleet("aeg", NoCoast, "con", NoCoast)
	fleet("aeg", NoCoast, "gre", NoCoast)
	fleet("aeg", NoCoast, "smy", NoCoast)
	fleet("bal", NoCoast, "ber", NoCoast)
	fleet("bal", NoCoast, "den", NoCoast)
	fleet("bal", NoCoast, "kie", NoCoast)
	fleet("bal", NoCoast, "lvn", NoCoast)
	fleet("bal", NoCoast, "pru", NoCoast)
	fleet("bal", NoCoast, "swe", NoCoast)
	fleet("bar", NoCoast, "nwy", NoCoast)
	fleet("bar", NoCoast, "stp", NorthCoast)
	fleet("bla", NoCoast, "ank", NoCoast)
	fleet("bla", NoCoast, "arm", NoCoast)
	fleet("bla", NoCoast, "bul", EastCoast)
	fleet("bla", NoCoast, "con", NoCoast)
	fleet("bla", NoCoast, "rum", NoCoast)
	fleet("bla", NoCoast, "sev", NoCoast)
	fleet("bot", NoCoast, "fin", NoCoast)
	fleet("bot", NoCoast, "lvn", NoCoast)
	fleet("bot", NoCoast, "stp", SouthCoast)
	fleet("bot", NoCoast, "swe", NoCoast)
	fleet("eas", NoCoast, "smy", NoCoast)
	fleet("eas", NoCoast, "syr", NoCoast)
	fleet("eng", NoCoast, "bel", NoCoast)
	fleet("eng", NoCoast, "bre", NoCoast)
	fleet("eng", NoCoast, "lon", NoCoast)
	fleet("eng", NoCoast, "pic", NoCoast)
	fleet("eng", NoCoast, "wal", NoCoast)
	fleet("gol", NoCoast, "mar", NoCoast)
	fleet("gol", NoCoast, "pie", NoCoast)
	fleet("gol", NoCoast, "spa", SouthCoast)
	fleet("gol", NoCoast, "tus", NoCoast)
	fleet("hel", NoCoast, "den", NoCoast)
	fleet("hel", NoCoast, "hol", NoCoast)
	fleet("hel", NoCoast, "kie", NoCoast)
	fleet("ion", NoCoast, "alb", NoCoast)
	fleet("ion", NoCoast, "apu", NoCoast)
	fleet("ion", NoCoast, "gre", NoCoast)
	fleet("ion", NoCoast, "nap", NoCoast)
	fleet("ion", NoCoast, "tun", NoCoast)
	fleet("iri", NoCoast, "lvp", NoCoast)
	fleet("iri", NoCoast, "wal", NoCoast)
	fleet("mao", NoCoast, "bre", NoCoast)
	fleet("mao", NoCoast, "gas", NoCoast)
	fleet("mao", NoCoast, "naf", NoCoast)
	fleet("mao", NoCoast, "por", NoCoast)
	fleet("mao", NoCoast, "spa", NorthCoast)
	fleet("mao", NoCoast, "spa", SouthCoast)
	fleet("nao", NoCoast, "cly", NoCoast)
	fleet("nao", NoCoast, "lvp", NoCoast)
	fleet("nth", NoCoast, "bel", NoCoast)
	fleet("nth", NoCoast, "den", NoCoast)
	fleet("nth", NoCoast, "edi", NoCoast)
	fleet("nth", NoCoast, "hol", NoCoast)
	fleet("nth", NoCoast, "lon", NoCoast)
	fleet("nth", NoCoast, "nwy", NoCoast)
	fleet("nth", NoCoast, "yor", NoCoast)
	fleet("nrg", NoCoast, "cly", NoCoast)
	fleet("nrg", NoCoast, "edi", NoCoast)
	fleet("nrg", NoCoast, "nwy", NoCoast)
	fleet("ska", NoCoast, "den", NoCoast)
	fleet("ska", NoCoast, "nwy", NoCoast)
	fleet("ska", NoCoast, "swe", NoCoast)
	fleet("tys", NoCoast, "nap", NoCoast)
	fleet("tys", NoCoast, "rom", NoCoast)
	fleet("tys", NoCoast, "tun", NoCoast)
	fleet("tys", NoCoast, "tus", NoCoast)
	fleet("wes", NoCoast, "naf", NoCoast)
	fleet("wes", NoCoast, "spa", SouthCoast)
	fleet("wes", NoCoast, "tun", NoCoast)

	// Inland to inland
	army("boh", "gal")
	army("boh", "mun")
	army("boh", "sil")
	army("boh", "tyr")
	army("boh", "vie")
	army("bud", "gal")
	army("bud", "vie")
	army("bur", "mun")
	army("bur", "par")
	army("bur", "ruh")
	army("gal", "sil")
	army("gal", "ukr")
	army("gal", "vie")
	army("gal", "war")
	army("mos", "ukr")
	army("mos", "war")
	army("mun", "ruh")
	army("mun", "sil")
	army("mun", "tyr")
	army("sil", "war")
	army("tyr", "vie")
	army("ukr", "war")

	// Inland to coast
	army("bud", "rum")
	army("bud", "ser")
	army("bud", "tri")
	army("bur", "bel")
	army("bur", "gas")
	army("bur", "mar")
	army("bur", "pic")
	army("gal", "rum")
	army("gas", "mar")
	army("mos", "lvn")
	army("mos", "sev")
	army("mos", "stp")
	army("mun", "ber")
	army("mun", "kie")
	army("par", "bre")
	army("par", "gas")
	army("par", "pic")
	army("ruh", "bel")
	army("ruh", "hol")
	army("ruh", "kie")
	army("ser", "alb")
	army("ser", "bul")
	army("ser", "gre")
	army("ser", "rum")
	army("ser", "tri")
	army("sil", "ber")
	army("sil", "pru")
	army("tyr", "pie")
	army("tyr", "tri")
	army("tyr", "ven")
	army("ukr", "rum")
	army("ukr", "sev")
	army("vie", "tri")
	army("war", "lvn")
	army("war", "pru")

	// Coast to coast, shared land and sea border
	both("alb", "gre")
	both("alb", "tri")
	both("ank", "arm")
	both("ank", "con")
	both("apu", "nap")
	both("apu", "ven")
	both("bel", "hol")
	both("bel", "pic")
	both("ber", "kie")
	both("ber", "pru")
	both("bre", "gas")
	both("bre", "pic")
	both("cly", "edi")
	both("cly", "lvp")
	both("con", "smy")
	both("den", "kie")
	both("den", "swe")
	both("edi", "yor")
	both("fin", "swe")
	both("hol", "kie")
	both("lon", "wal")
	both("lon", "yor")
	both("lvp", "wal")
	both("mar", "pie")
	both("naf", "tun")
	both("nwy", "swe")
	both("pie", "tus")
	both("pru", "lvn")
	both("rom", "nap")
	both("rom", "tus")
	both("sev", "arm")
	both("sev", "rum")
	both("smy", "syr")
	both("tri", "ven")

	// Coast to coast, land border only (different seas)
	army("ank", "smy")
	army("apu", "rom")
	army("arm", "smy")
	army("arm", "syr")
	army("edi", "lvp")
	army("fin", "nwy")
	army("lvp", "yor")
	army("pie", "ven")
	army("rom", "ven")
	army("tus", "ven")
	army("wal", "yor")

	// Coast to split-coast, fleet passages naming the coast
	fleet("con", NoCoast, "bul", EastCoast)
	fleet("con", NoCoast, "bul", SouthCoast)
	fleet("gre", NoCoast, "bul", SouthCoast)
	fleet("rum", NoCoast, "bul", EastCoast)
	fleet("gas", NoCoast, "spa", NorthCoast)
	fleet("mar", NoCoast, "spa", SouthCoast)
	fleet("por", NoCoast, "spa", NorthCoast)
	fleet("por", NoCoast, "spa", SouthCoast)
	fleet("fin", NoCoast, "stp", SouthCoast)
	fleet("lvn", NoCoast, "stp", SouthCoast)
	fleet("nwy", NoCoast, "stp", NorthCoast)

	// Coast to split-coast, land border only
	army("con", "bul")
	army("gre", "bul")
	army("rum", "bul")
	army("gas", "spa")
	army("mar", "spa")
	army("por", "spa")
	army("fin", "stp")
	army("lvn", "stp")
	army("nwy", "stp")

	m.startUnits = map[Power][]Unit{
		Austria: {
			{Army, Austria, "vie", NoCoast},
			{Army, Austria, "bud", NoCoast},
			{Fleet, Austria, "tri", NoCoast},
		},
		England: {
			{Fleet, England, "lon", NoCoast},
			{Fleet, England, "edi", NoCoast},
			{Army, England, "lvp", NoCoast},
		},
		France: {
			{Fleet, France, "bre", NoCoast},
			{Army, France, "par", NoCoast},
			{Army, France, "mar", NoCoast},
		},
		Germany: {
			{Fleet, Germany, "kie", NoCoast},
			{Army, Germany, "ber", NoCoast},
			{Army, Germany, "mun", NoCoast},
		},
		Italy: {
			{Fleet, Italy, "nap", NoCoast},
			{Army, Italy, "rom", NoCoast},
			{Army, Italy, "ven", NoCoast},
		},
		Russia: {
			{Fleet, Russia, "stp", SouthCoast},
			{Army, Russia, "mos", NoCoast},
			{Army, Russia, "war", NoCoast},
			{Fleet, Russia, "sev", NoCoast},
		},
		Turkey: {
			{Fleet, Turkey, "ank", NoCoast},
			{Army, Turkey, "con", NoCoast},
			{Army, Turkey, "smy", NoCoast},
		},
	}

	m.buildIndexes()
	return m
}
