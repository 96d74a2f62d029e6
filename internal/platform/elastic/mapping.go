package elastic

// indexMapping is the settings and mapping body of every patient
// index. The abstract field is analyzed accent- and case-insensitively
// without norms, full documents are stored unindexed, and the suggest
// field feeds the completion suggester.
var indexMapping = []byte(`{
  "mappings": {
    "properties": {
      "documentType": {
        "type": "text"
      },
      "documentStartDate": {
        "type": "date",
        "format": "strict_date_optional_time||yyyyMMdd||yyyyMM"
      },
      "documentEndDate": {
        "type": "date",
        "format": "strict_date_optional_time||yyyyMMdd||yyyyMM"
      },
      "fullDocument": {
        "type": "object",
        "enabled": false
      },
      "abstract": {
        "type": "text",
        "norms": false,
        "analyzer": "doc_analyzer"
      },
      "suggest": {
        "type": "completion"
      }
    }
  },
  "settings": {
    "index": {
      "refresh_interval": "-1",
      "number_of_shards": "1",
      "number_of_replicas": "1",
      "analysis": {
        "analyzer": {
          "doc_analyzer": {
            "tokenizer": "standard",
            "filter": ["lowercase", "asciifolding"]
          }
        }
      }
    }
  }
}`)
