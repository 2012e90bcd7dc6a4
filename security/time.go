package security

import "time"

// DefaultClockSkewGracePeriod is the default grace period applied to token
// expiry and max-age checks. It prevents false expiration errors due to time
// synchronization issues between different systems (client, server, provider).
//
// Trade-offs:
//   - Allows tokens to be used up to 5 seconds beyond their true expiration
//   - This is acceptable for most use cases and improves reliability
//   - For high-security scenarios, this can be reduced
const DefaultClockSkewGracePeriod = 5 * time.Second
