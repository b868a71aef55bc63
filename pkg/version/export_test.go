package version

var RevisionOf = revision
