package utils

// UpcomingEventsCacheKey is bumped whenever the cached payload shape changes.
const UpcomingEventsCacheKey = "events:upcoming:v2"

// UpcomingEventsGenerationKey holds a token replaced on every invalidation.
// Listings are cached under the token that was current when they were read.
const UpcomingEventsGenerationKey = "events:upcoming:gen"
