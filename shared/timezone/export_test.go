package timezone

var Load = load
