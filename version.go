package eb

// Version is reported by every tool in response to --version.
const Version = "4.4.3"
