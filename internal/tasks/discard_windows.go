package tasks

const discardPath = "NUL"
