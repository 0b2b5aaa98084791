package statemachine

import "time"

// nowFunc is a seam for deterministic tests; production code never
// overrides it.
var nowFunc = time.Now
